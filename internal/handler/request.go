package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-ops-api/internal/middleware"
	"github.com/noah-isme/tutor-ops-api/internal/models"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
	"github.com/noah-isme/tutor-ops-api/pkg/response"
)

func bindJSON(c *gin.Context, dest interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg))
		return false
	}
	return true
}

func pathInt(c *gin.Context, name string) (int, error) {
	raw := c.Param(name)
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.WithDetails(appErrors.ErrValidation, name+" must be a number", "field", name, "value", raw)
	}
	return value, nil
}

// asOfParam reads an optional as_of date, defaulting to the request time.
func asOfParam(c *gin.Context) (time.Time, error) {
	raw := strings.TrimSpace(c.Query("as_of"))
	if raw == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.WithDetails(appErrors.ErrValidation, "invalid as_of, expected YYYY-MM-DD", "field", "as_of", "value", raw)
	}
	return parsed, nil
}

func timedMeta(c *gin.Context, start time.Time, cacheHit bool) map[string]interface{} {
	middleware.SetCacheHit(c, cacheHit)
	return middleware.Elapsed(c, start)
}
