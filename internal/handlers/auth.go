package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/splithaus/splithaus/internal/auth"
	"github.com/splithaus/splithaus/internal/models"
	"github.com/splithaus/splithaus/internal/services"
	"github.com/splithaus/splithaus/pkg/response"
)

// AuthHandler exposes account registration and login.
type AuthHandler struct {
	users *services.UserService
	jwt   *auth.JWTService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserService, jwt *auth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"max=255"`
	Phone       string `json:"phone" validate:"max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a new account and returns a session token.
func (h *AuthHandler) Register(c *gin.Context) {
	req, ok := bindAndValidate[registerRequest](c)
	if !ok {
		return
	}

	user, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, sessionResponse{Token: token, User: user})
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	req, ok := bindAndValidate[loginRequest](c)
	if !ok {
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, sessionResponse{Token: token, User: user})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}
