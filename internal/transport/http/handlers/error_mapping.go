package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

var authErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrExpiredAccessToken, Status: http.StatusUnauthorized, Message: "access token expired"},
	{Err: usecase.ErrAccessTokenRevoked, Status: http.StatusUnauthorized, Message: "access token revoked"},
	{Err: usecase.ErrInvalidAccessToken, Status: http.StatusUnauthorized, Message: "invalid access token"},
}

// RespondWithMappedError resolves err against cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// RespondError renders the service error taxonomy. Messages of client errors are passed
// through because they name the offending field; anything unrecognised becomes a 500.
func RespondError(c *gin.Context, err error) {
	var exhausted *domain.GenerationExhaustedError
	switch {
	case errors.As(err, &exhausted):
		c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(c, "could not generate a unique username, try again"))
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, err.Error()))
	case errors.Is(err, domain.ErrConstraintViolation):
		c.JSON(http.StatusConflict, NewErrorResponse(c, err.Error()))
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "insufficient permissions"))
	default:
		RespondWithMappedError(c, err, authErrorCases, http.StatusInternalServerError, "internal server error")
	}
}
