package authz

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqpipe/reqpipe/internal/auth"
	"github.com/reqpipe/reqpipe/internal/config"
)

func principal(roles ...string) *auth.Principal {
	return &auth.Principal{Subject: "user-1", Roles: roles}
}

func TestEngine_FirstMatchAllows(t *testing.T) {
	engine := NewEngine([]Rule{
		{Role: "viewer", Resource: "orders/*", Action: "read"},
		{Role: "editor", Resource: "orders/*", Action: "write"},
	})

	tests := []struct {
		name     string
		roles    []string
		resource string
		action   string
		allowed  bool
	}{
		{
			name:     "viewer reads order",
			roles:    []string{"viewer"},
			resource: "orders/7",
			action:   "read",
			allowed:  true,
		},
		{
			name:     "viewer cannot write order",
			roles:    []string{"viewer"},
			resource: "orders/7",
			action:   "write",
			allowed:  false,
		},
		{
			name:     "editor writes order",
			roles:    []string{"editor"},
			resource: "orders/7",
			action:   "write",
			allowed:  true,
		},
		{
			name:     "no roles is denied",
			roles:    nil,
			resource: "orders/7",
			action:   "read",
			allowed:  false,
		},
		{
			name:     "unknown role is denied",
			roles:    []string{"billing"},
			resource: "orders/7",
			action:   "read",
			allowed:  false,
		},
		{
			name:     "unmatched resource is denied",
			roles:    []string{"viewer"},
			resource: "invoices/7",
			action:   "read",
			allowed:  false,
		},
		{
			name:     "second role can allow",
			roles:    []string{"billing", "viewer"},
			resource: "orders/7",
			action:   "read",
			allowed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Authorize(context.Background(), principal(tt.roles...), tt.resource, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrDenied)
			}
		})
	}
}

func TestEngine_ResourcePatterns(t *testing.T) {
	tests := []struct {
		pattern  string
		resource string
		match    bool
	}{
		{"orders/7", "orders/7", true},
		{"orders/7", "orders/77", false},
		{"orders/*", "orders/7", true},
		{"orders/*", "orders/", true},
		{"orders/*", "orders", false},
		{"*", "anything/at/all", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.resource, func(t *testing.T) {
			assert.Equal(t, tt.match, matchResource(tt.pattern, tt.resource))
		})
	}
}

func TestEngine_ActionWildcardAndCase(t *testing.T) {
	engine := NewEngine([]Rule{
		{Role: "admin", Resource: "*", Action: "*"},
		{Role: "viewer", Resource: "orders/*", Action: "READ"},
	})

	assert.NoError(t, engine.Authorize(context.Background(), principal("admin"), "orders/1", "purge"))
	// Action comparison is case-insensitive.
	assert.NoError(t, engine.Authorize(context.Background(), principal("viewer"), "orders/1", "read"))
}

func TestEngine_DeniedErrorCarriesAuditContext(t *testing.T) {
	engine := NewEngine(nil)

	err := engine.Authorize(context.Background(), principal("viewer", "editor"), "orders/7", "write")
	require.Error(t, err)

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, []string{"viewer", "editor"}, denied.Roles)
	assert.Equal(t, "orders/7", denied.Resource)
	assert.Equal(t, "write", denied.Action)
	assert.True(t, IsDenied(err))
}

func TestEngine_Reload(t *testing.T) {
	engine := NewEngine([]Rule{
		{Role: "viewer", Resource: "orders/*", Action: "read"},
	})

	p := principal("viewer")
	require.NoError(t, engine.Authorize(context.Background(), p, "orders/1", "read"))

	engine.Reload([]Rule{
		{Role: "viewer", Resource: "invoices/*", Action: "read"},
	})

	assert.ErrorIs(t, engine.Authorize(context.Background(), p, "orders/1", "read"), ErrDenied)
	assert.NoError(t, engine.Authorize(context.Background(), p, "invoices/1", "read"))
	assert.Len(t, engine.Rules(), 1)
}

func TestEngine_ConcurrentAuthorizeAndReload(t *testing.T) {
	engine := NewEngine([]Rule{
		{Role: "viewer", Resource: "orders/*", Action: "read"},
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				// Outcome depends on interleaving; only race freedom
				// and a well-formed result matter here.
				_ = engine.Authorize(context.Background(), principal("viewer"), "orders/1", "read")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			engine.Reload([]Rule{
				{Role: "viewer", Resource: "orders/*", Action: "read"},
			})
		}
	}()

	wg.Wait()
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - role: viewer
    resource: "orders/*"
    action: read
  - role: editor
    resource: "orders/*"
    action: write
`), 0o600))

	rules, err := NewFileSource(path).Load()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, Rule{Role: "viewer", Resource: "orders/*", Action: "read"}, rules[0])
}

func TestFileSource_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules: [{role: viewer}]`), 0o600))

	_, err := NewFileSource(path).Load()
	require.Error(t, err)

	_, err = NewFileSource(filepath.Join(dir, "missing.yaml")).Load()
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	rules, err := FromConfig([]config.RuleConfig{
		{Role: "viewer", Resource: "orders/*", Action: "read"},
	})
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = FromConfig([]config.RuleConfig{{Role: "viewer"}})
	require.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	rules := []Rule{{Role: "viewer", Resource: "*", Action: "read"}}
	got, err := NewStaticSource(rules).Load()
	require.NoError(t, err)
	assert.Equal(t, rules, got)
}
