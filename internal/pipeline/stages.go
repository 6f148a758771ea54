package pipeline

import (
	"context"
	"errors"

	"github.com/reqpipe/reqpipe/internal/auth"
	"github.com/reqpipe/reqpipe/internal/authz"
	"github.com/reqpipe/reqpipe/internal/cache"
	"github.com/reqpipe/reqpipe/internal/retry"
	"github.com/reqpipe/reqpipe/internal/upstream"
)

// Stage is one step of the pipeline. A non-nil error stops the
// pipeline; later stages do not run.
type Stage interface {
	// Name identifies the stage in logs and metrics.
	Name() string

	// Run executes the stage against the request context.
	Run(ctx context.Context, rc *RequestContext) error
}

// authenticateStage resolves the credential into a principal.
type authenticateStage struct {
	verifier auth.Verifier
}

// NewAuthenticateStage creates the authentication stage.
func NewAuthenticateStage(verifier auth.Verifier) Stage {
	return &authenticateStage{verifier: verifier}
}

func (s *authenticateStage) Name() string { return "authenticate" }

func (s *authenticateStage) Run(ctx context.Context, rc *RequestContext) error {
	principal, err := s.verifier.Verify(ctx, rc.Credential)
	if err != nil {
		return err
	}
	rc.Principal = principal
	return nil
}

// authorizeStage checks the principal's roles against the rule table.
type authorizeStage struct {
	engine *authz.Engine
}

// NewAuthorizeStage creates the authorization stage.
func NewAuthorizeStage(engine *authz.Engine) Stage {
	return &authorizeStage{engine: engine}
}

func (s *authorizeStage) Name() string { return "authorize" }

func (s *authorizeStage) Run(ctx context.Context, rc *RequestContext) error {
	if rc.Principal == nil {
		return errors.New("authorize stage requires an authenticated principal")
	}
	return s.engine.Authorize(ctx, rc.Principal, rc.Resource, rc.Action)
}

// fetchStage serves the response from the cache, loading through the
// retry executor and upstream client on a miss.
type fetchStage struct {
	cache    *cache.ResponseCache
	executor *retry.Executor
	client   upstream.Client
}

// NewFetchStage creates the cached upstream fetch stage.
func NewFetchStage(c *cache.ResponseCache, executor *retry.Executor, client upstream.Client) Stage {
	return &fetchStage{cache: c, executor: executor, client: client}
}

func (s *fetchStage) Name() string { return "fetch" }

func (s *fetchStage) Run(ctx context.Context, rc *RequestContext) error {
	key := cache.Key(rc.Resource, rc.Action, rc.Params)

	value, err := s.cache.GetOrLoad(ctx, key, rc.CacheTTL, func(ctx context.Context) ([]byte, error) {
		var body []byte
		err := s.executor.Execute(ctx, s.client.Name(), func(ctx context.Context) error {
			var callErr error
			body, callErr = s.client.Call(ctx, upstream.Request{
				Resource: rc.Resource,
				Action:   rc.Action,
				Params:   rc.Params,
			})
			return callErr
		})
		if err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		return err
	}

	return rc.SetResult(value)
}
