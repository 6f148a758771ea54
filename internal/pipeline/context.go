// Package pipeline runs requests through the ordered processing
// stages: authentication, authorization, and the cached upstream
// fetch.
package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reqpipe/reqpipe/internal/auth"
)

// ErrResultAlreadySet is returned when a stage tries to write the
// result slot twice.
var ErrResultAlreadySet = errors.New("pipeline result already set")

// RequestContext carries one request through the pipeline. Stages
// read what earlier stages produced; the result slot accepts exactly
// one write.
type RequestContext struct {
	// ID correlates log lines and traces for this request.
	ID string

	// Credential is the raw client credential, typically a bearer
	// token.
	Credential string

	// Resource is the resource the request targets.
	Resource string

	// Action is the operation on the resource.
	Action string

	// Params are additional request parameters.
	Params map[string]string

	// CacheTTL overrides the cache's default TTL for this request's
	// response. Zero keeps the default.
	CacheTTL time.Duration

	// Principal is set by the authentication stage.
	Principal *auth.Principal

	mu        sync.Mutex
	result    []byte
	resultSet bool
}

// NewRequestContext creates a request context with a fresh request ID.
func NewRequestContext(credential, resource, action string, params map[string]string) *RequestContext {
	return &RequestContext{
		ID:         uuid.NewString(),
		Credential: credential,
		Resource:   resource,
		Action:     action,
		Params:     params,
	}
}

// SetResult writes the response body. The slot is write-once; a
// second write fails.
func (rc *RequestContext) SetResult(body []byte) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.resultSet {
		return ErrResultAlreadySet
	}
	rc.result = body
	rc.resultSet = true
	return nil
}

// Result returns the response body and whether it has been set.
func (rc *RequestContext) Result() ([]byte, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.result, rc.resultSet
}
