package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ryu655/voiceshape-clean/internal/jobs"
	"github.com/ryu655/voiceshape-clean/internal/storage"
)

// Error はクライアントに返すエラーです。
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case "LIMIT_EXCEEDED":
			status = http.StatusRequestEntityTooLarge
		case "JOB_NOT_FOUND":
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"code":  apiErr.Code,
			"error": apiErr.Message,
		})
	case errors.Is(err, storage.ErrTooLarge):
		respondWithError(c, newError("LIMIT_EXCEEDED", "File too large"))
	case errors.Is(err, jobs.ErrInvalidSubmission):
		respondWithError(c, newError("INVALID_INPUT", "No selected file"))
	case errors.Is(err, jobs.ErrJobNotFound):
		respondWithError(c, newError("JOB_NOT_FOUND", "File not found"))
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":  "REQUEST_CANCELED",
			"error": "Request canceled",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": "Internal server error",
		})
	}
}
