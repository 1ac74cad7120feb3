package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LordMirex/mytypist-backend/middleware"
)

var errBadTimestamp = errors.New("invalid timestamp format, use RFC3339 (e.g., 2006-01-02T15:04:05Z)")

// parseTimeRange reads the start and end query parameters, defaulting to the
// last seven days.
func parseTimeRange(c *gin.Context) (start, end time.Time, err error) {
	end = time.Now().UTC()
	start = end.Add(-7 * 24 * time.Hour)

	if v := c.Query("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			return start, end, fmt.Errorf("start: %w", errBadTimestamp)
		}
	}
	if v := c.Query("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			return start, end, fmt.Errorf("end: %w", errBadTimestamp)
		}
	}
	if end.Before(start) {
		return start, end, errors.New("end must not be before start")
	}
	return start, end, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func optionalInt64(c *gin.Context, name string) (*int64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%s must be a positive integer", name)
	}
	return &n, nil
}

// requireUser resolves the user a dashboard request is scoped to. Service
// callers without an X-User-ID may name the user with ?user_id=.
func requireUser(c *gin.Context) (int64, bool) {
	if id, ok := middleware.UserID(c); ok {
		return id, true
	}
	if c.GetString(middleware.ContextRole) == middleware.RoleService {
		if id, err := strconv.ParseInt(c.Query("user_id"), 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "user context required"})
	return 0, false
}
