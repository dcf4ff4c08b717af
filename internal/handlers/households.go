package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/splithaus/splithaus/internal/services"
	"github.com/splithaus/splithaus/pkg/response"
)

// HouseholdHandler exposes household and membership management.
type HouseholdHandler struct {
	households *services.HouseholdService
	users      *services.UserService
}

// NewHouseholdHandler constructs a HouseholdHandler.
func NewHouseholdHandler(households *services.HouseholdService, users *services.UserService) *HouseholdHandler {
	return &HouseholdHandler{households: households, users: users}
}

type createHouseholdRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Address string `json:"address" validate:"max=512"`
}

// Create registers a household with the caller as its creator.
func (h *HouseholdHandler) Create(c *gin.Context) {
	req, ok := bindAndValidate[createHouseholdRequest](c)
	if !ok {
		return
	}

	userID := currentUserID(c)
	input := services.CreateHouseholdInput{
		Name:      req.Name,
		Address:   req.Address,
		CreatorID: userID,
	}
	if user, err := h.users.Get(c.Request.Context(), userID); err == nil {
		input.DisplayName = user.DisplayName
		input.Email = user.Email
	}

	household, err := h.households.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, household)
}

// List returns the caller's households.
func (h *HouseholdHandler) List(c *gin.Context) {
	households, err := h.households.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, households)
}

// Members returns the memberships of a household.
func (h *HouseholdHandler) Members(c *gin.Context) {
	members, err := h.households.Members(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// RemoveMember removes a member from a household.
func (h *HouseholdHandler) RemoveMember(c *gin.Context) {
	err := h.households.RemoveMember(c.Request.Context(), c.Param("id"), currentUserID(c), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
