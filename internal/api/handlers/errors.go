package handlers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"storyboard/internal/auth"
	"storyboard/internal/logging"
	"storyboard/internal/models"

	"github.com/gin-gonic/gin"
)

// errorStatus maps an auth error kind to its HTTP status and the fixed
// message sent to clients. Order matters: the token kinds wrap
// ErrInvalidOrExpiredToken and are matched by it.
var errorStatus = []struct {
	kind   error
	status int
}{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrUnauthorized, http.StatusUnauthorized},
	{auth.ErrAccountLocked, http.StatusForbidden},
	{auth.ErrAccountDeactivated, http.StatusForbidden},
	{auth.ErrEmailNotVerified, http.StatusForbidden},
	{auth.ErrDuplicateEmail, http.StatusConflict},
	{auth.ErrWeakPassword, http.StatusBadRequest},
	{auth.ErrSamePassword, http.StatusBadRequest},
	{auth.ErrInvalidEmail, http.StatusBadRequest},
	{auth.ErrInvalidOrExpiredToken, http.StatusBadRequest},
	{auth.ErrNotFound, http.StatusNotFound},
}

// respondError writes the response for a service error. Unknown errors and
// storage failures are logged and reported as a bare 500.
func respondError(c *gin.Context, logger *slog.Logger, policy auth.PasswordPolicy, err error) {
	for _, e := range errorStatus {
		if !errors.Is(err, e.kind) {
			continue
		}

		resp := models.ErrorResponse{Error: e.kind.Error()}

		var weak *auth.WeakPasswordError
		if errors.As(err, &weak) {
			resp.Details = policy.Describe(weak.Violations)
		}

		var locked *auth.LockedError
		if errors.As(err, &locked) {
			if locked.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(locked.RetryAfter.Seconds()))))
			}
		}

		c.JSON(e.status, resp)
		return
	}

	logging.LogError(c.Request.Context(), logger, "request failed", err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal server error"})
}

// respondTokenError is respondError for endpoints where a bad token means
// the caller is not authenticated
func respondTokenError(c *gin.Context, logger *slog.Logger, policy auth.PasswordPolicy, err error) {
	if errors.Is(err, auth.ErrInvalidOrExpiredToken) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: auth.ErrInvalidOrExpiredToken.Error()})
		return
	}
	respondError(c, logger, policy, err)
}
