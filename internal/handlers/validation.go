package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fileadmin/internal/services"
	appErrors "github.com/charlesng35/fileadmin/pkg/errors"
	"github.com/charlesng35/fileadmin/pkg/response"
	appValidator "github.com/charlesng35/fileadmin/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, a 422 response with per-field messages is written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		var failures appValidator.ValidationErrors
		if errors.As(err, &failures) && len(failures) > 0 {
			response.Error(c, appErrors.NewValidationFields(failures.Fields()))
			return false
		}
		response.Error(c, appErrors.NewBadRequest("invalid request payload"))
		return false
	}

	return true
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func pageRequest(c *gin.Context) services.PageRequest {
	return services.PageRequest{
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "per_page", 0),
	}
}

func listMeta(page services.PageRequest, total int64) *response.Meta {
	current, perPage := page.Normalise()
	return response.NewMeta(current, perPage, total)
}
