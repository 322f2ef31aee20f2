package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/fracpack/internal/auth"
	"github.com/danmuck/fracpack/internal/registry"
)

type statusError struct {
	status int
	err    error
}

func (e statusError) Error() string { return e.err.Error() }
func (e statusError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return statusError{http.StatusBadRequest, err}
}

func unprocessable(err error) error {
	return statusError{http.StatusUnprocessableEntity, err}
}

// fail writes err as a JSON error body with a status derived from it.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	var incompatible *registry.IncompatibleError
	var se statusError
	switch {
	case errors.As(err, &incompatible):
		c.JSON(http.StatusConflict, gin.H{
			"error":      err.Error(),
			"difference": incompatible.Diff.String(),
			"allowed":    incompatible.Allowed.String(),
			"reason":     incompatible.Reason,
		})
	case errors.Is(err, ErrSchemaNotFound), errors.Is(err, ErrTypeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrMissingToken):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &se):
		c.JSON(se.status, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
