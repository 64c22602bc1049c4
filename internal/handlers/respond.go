package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// respondError writes err as {"error": ...}. Validation errors carry their
// per-field messages in "details"; server errors are logged and reported
// without internals.
func respondError(c *gin.Context, funcName string, err error) {
	status := apperr.StatusCode(err)

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body := gin.H{"error": ve.Message}
		if len(ve.Fields) > 0 {
			body["details"] = ve.Fields
		}
		c.JSON(status, body)
		return
	}

	if status >= http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "handlers", funcName, c.Request.Method+" "+c.Request.URL.Path, nil, err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondBindError reports a request body that could not be bound.
func respondBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make(map[string]string)
		for _, ve := range validationErrors {
			details[ve.Field()] = ve.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": details})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
}

// pagination reads ?page= and ?limit= with the usual bounds.
func pagination(c *gin.Context) (page, limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	page, err = strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}

	return page, limit, (page - 1) * limit
}

func totalPages(total int64, limit int) int {
	return int((total + int64(limit) - 1) / int64(limit))
}
