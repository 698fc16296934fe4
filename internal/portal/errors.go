package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"facultyportal/internal/attendance"
)

// writeError maps workflow errors onto HTTP answers.
func writeError(c *gin.Context, err error) {
	var (
		openErr    *attendance.SessionOpenError
		incomplete *attendance.IncompleteSubmissionError
		commitErr  *attendance.CommitFailure
		draftErr   *attendance.DraftSaveError
	)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrSessionCommitted), errors.Is(err, attendance.ErrSubmitting):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &draftErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "change not saved, try again"})
	case errors.As(err, &openErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not open session", "detail": openErr.Err.Error()})
	case errors.As(err, &incomplete):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "record set does not match roster",
			"missing":    incomplete.Missing,
			"unexpected": incomplete.Unexpected,
			"duplicates": incomplete.Duplicates,
		})
	case errors.As(err, &commitErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "commit failed",
			"detail":    commitErr.Err.Error(),
			"retryable": commitErr.Retryable,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
