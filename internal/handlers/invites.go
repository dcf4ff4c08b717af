package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/splithaus/splithaus/internal/models"
	"github.com/splithaus/splithaus/internal/services"
	"github.com/splithaus/splithaus/pkg/response"
)

// InviteHandler exposes invitation token management and redemption.
type InviteHandler struct {
	invites *services.InviteService
}

// NewInviteHandler constructs an InviteHandler.
func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type createInviteRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type createInviteResponse struct {
	// Token is the raw credential. It is shown exactly once; only its hash
	// is stored.
	Token  string                  `json:"token"`
	Invite *models.InvitationToken `json:"invite"`
}

// Create issues a new invitation token for the household.
func (h *InviteHandler) Create(c *gin.Context) {
	req, ok := bindAndValidate[createInviteRequest](c)
	if !ok {
		return
	}

	token, invite, err := h.invites.Issue(c.Request.Context(), c.Param("id"), currentUserID(c), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, createInviteResponse{Token: token, Invite: invite})
}

// List returns the household's invitation tokens.
func (h *InviteHandler) List(c *gin.Context) {
	invites, err := h.invites.ListForHousehold(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invites)
}

// Cancel deactivates an invitation token.
func (h *InviteHandler) Cancel(c *gin.Context) {
	if err := h.invites.Cancel(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

type redeemInviteRequest struct {
	Token       string `json:"token" validate:"required"`
	DisplayName string `json:"display_name" validate:"max=255"`
}

// Redeem consumes an invitation token and joins the caller to its household.
func (h *InviteHandler) Redeem(c *gin.Context) {
	req, ok := bindAndValidate[redeemInviteRequest](c)
	if !ok {
		return
	}

	result, err := h.invites.Redeem(c.Request.Context(), req.Token, currentUserID(c), req.DisplayName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
