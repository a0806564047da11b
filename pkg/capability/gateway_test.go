package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	return New(Config{Logger: zerolog.Nop()})
}

func echoCapability() Capability {
	return Capability{
		Name:        "echo",
		Description: "Echoes its input back",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			text, _ := params["text"].(string)
			return text, nil
		},
	}
}

func TestGateway_Register(t *testing.T) {
	g := newTestGateway(t)

	err := g.Register(echoCapability())
	assert.NoError(t, err)
	assert.True(t, g.Has("echo"))
	assert.Equal(t, []string{"echo"}, g.Names())
}

func TestGateway_Register_InvalidDefinition(t *testing.T) {
	g := newTestGateway(t)
	noop := func(ctx context.Context, params map[string]interface{}) (string, error) { return "", nil }

	tests := []struct {
		name string
		def  Capability
	}{
		{
			name: "empty name",
			def:  Capability{Description: "Test", Handler: noop},
		},
		{
			name: "empty description",
			def:  Capability{Name: "test", Handler: noop},
		},
		{
			name: "nil handler",
			def:  Capability{Name: "test", Description: "Test"},
		},
		{
			name: "invalid parameter type",
			def: Capability{
				Name:        "test",
				Description: "Test",
				Parameters:  []Parameter{{Name: "x", Type: "blob", Description: "X"}},
				Handler:     noop,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Register(tt.def)
			assert.Error(t, err)
		})
	}
}

func TestGateway_Register_Duplicate(t *testing.T) {
	g := newTestGateway(t)

	require.NoError(t, g.Register(echoCapability()))
	err := g.Register(echoCapability())
	assert.ErrorContains(t, err, "already registered")
}

func TestGateway_Call_Success(t *testing.T) {
	g := newTestGateway(t)
	require.NoError(t, g.Register(echoCapability()))

	result := g.Call(context.Background(), "echo", map[string]interface{}{"text": "hello"})
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Output)
	assert.False(t, result.Truncated)
}

func TestGateway_Call_UnknownCapability(t *testing.T) {
	g := newTestGateway(t)

	result := g.Call(context.Background(), "missing", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not registered")
}

func TestGateway_Call_InvalidParameters(t *testing.T) {
	g := newTestGateway(t)
	require.NoError(t, g.Register(echoCapability()))

	t.Run("missing required parameter", func(t *testing.T) {
		result := g.Call(context.Background(), "echo", map[string]interface{}{})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "text")
	})

	t.Run("unexpected parameter", func(t *testing.T) {
		result := g.Call(context.Background(), "echo", map[string]interface{}{
			"text":  "hello",
			"extra": true,
		})
		assert.False(t, result.Success)
	})

	t.Run("wrong parameter type", func(t *testing.T) {
		result := g.Call(context.Background(), "echo", map[string]interface{}{"text": 42})
		assert.False(t, result.Success)
	})
}

func TestGateway_Call_HandlerError(t *testing.T) {
	g := newTestGateway(t)
	require.NoError(t, g.Register(Capability{
		Name:        "failing",
		Description: "Always fails",
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return "", errors.New("handler exploded")
		},
	}))

	result := g.Call(context.Background(), "failing", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "handler exploded")
}

func TestGateway_Call_Timeout(t *testing.T) {
	g := New(Config{Logger: zerolog.Nop(), CallTimeout: 50 * time.Millisecond})
	require.NoError(t, g.Register(Capability{
		Name:        "slow",
		Description: "Sleeps past the timeout",
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}))

	result := g.Call(context.Background(), "slow", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
}

func TestGateway_Call_TruncatesOutput(t *testing.T) {
	g := New(Config{Logger: zerolog.Nop(), OutputCap: 100})
	require.NoError(t, g.Register(Capability{
		Name:        "verbose",
		Description: "Returns a large payload",
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return strings.Repeat("x", 500), nil
		},
	}))

	result := g.Call(context.Background(), "verbose", nil)
	assert.True(t, result.Success)
	assert.True(t, result.Truncated)
	assert.Contains(t, result.Output, "[output truncated]")
	assert.Less(t, len(result.Output), 200)
}

func TestFiltered_BlocksDisallowedCapability(t *testing.T) {
	g := newTestGateway(t)
	require.NoError(t, g.Register(Capability{
		Name:        "web_search",
		Description: "Searches the web",
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return "results", nil
		},
	}))
	require.NoError(t, g.Register(Capability{
		Name:        "fetch_url",
		Description: "Fetches a page",
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return "page", nil
		},
	}))

	view := g.Filtered([]string{"web_search"})

	assert.True(t, view.Has("web_search"))
	assert.False(t, view.Has("fetch_url"))
	assert.Equal(t, []string{"web_search"}, view.Names())

	allowed := view.Call(context.Background(), "web_search", nil)
	assert.True(t, allowed.Success)

	blocked := view.Call(context.Background(), "fetch_url", nil)
	assert.False(t, blocked.Success)
	assert.Contains(t, blocked.Error, "allowed capabilities")
}

func TestFiltered_Specs(t *testing.T) {
	g := newTestGateway(t)
	require.NoError(t, g.Register(echoCapability()))
	require.NoError(t, g.Register(Capability{
		Name:        "other",
		Description: "Other capability",
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return "", nil
		},
	}))

	specs := g.Filtered([]string{"echo"}).Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, "echo", specs[0].Name)

	props, ok := specs[0].InputSchema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "text")
	assert.Equal(t, []string{"text"}, specs[0].InputSchema["required"])
}

func TestCapabilityError_Message(t *testing.T) {
	err := &CapabilityError{Capability: "fetch_url", Reason: "not registered"}
	assert.Equal(t, "capability fetch_url: not registered", err.Error())
	assert.Equal(t, fmt.Sprintf("%v", err), err.Error())
}
