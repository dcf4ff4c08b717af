package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/splithaus/splithaus/internal/middleware"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
	"github.com/splithaus/splithaus/pkg/response"
	"github.com/splithaus/splithaus/pkg/validator"
)

// bindAndValidate decodes the JSON body into T and runs struct validation.
// On failure it writes the error response and returns false; handlers just
// return early.
func bindAndValidate[T any](c *gin.Context) (*T, bool) {
	var payload T
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid request payload"))
		return nil, false
	}
	if err := validator.ValidateStruct(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return nil, false
	}
	return &payload, true
}

// currentUserID returns the authenticated user id set by the auth middleware.
func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserIDKey)
}
