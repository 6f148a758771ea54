package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reqpipe/reqpipe/internal/pipeline"
)

// methodActions maps HTTP methods to pipeline actions.
var methodActions = map[string]string{
	http.MethodGet:    "read",
	http.MethodHead:   "read",
	http.MethodPost:   "write",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

// handleRequest translates an HTTP request into a pipeline execution.
func (s *Server) handleRequest(c *gin.Context) {
	resource := strings.Trim(c.Param("resource"), "/")
	if resource == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource is required"})
		return
	}

	action, ok := methodActions[c.Request.Method]
	if !ok {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "unsupported method"})
		return
	}

	params := make(map[string]string)
	for name, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}

	rc := pipeline.NewRequestContext(bearerToken(c), resource, action, params)
	if requestID := c.GetString(requestIDKey); requestID != "" {
		rc.ID = requestID
	}

	ctx := c.Request.Context()
	if timeout := s.config.RequestTimeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := s.executor.Execute(ctx, rc); err != nil {
		class := pipeline.Classify(err)
		c.JSON(class.HTTPStatus(), gin.H{
			"error":      class.String(),
			"request_id": rc.ID,
		})
		return
	}

	body, ok := rc.Result()
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "internal",
			"request_id": rc.ID,
		})
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}

	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
