package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("flag", func(ctx context.Context, args map[string]any) (any, error) {
		return "flagged", nil
	}))

	fn, err := reg.Resolve("flag")
	require.NoError(t, err)
	out, err := fn(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "flagged", out)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }

	require.NoError(t, reg.Register("flag", noop))
	err := reg.Register("flag", noop)
	require.True(t, IsParameterError(err))
}

func TestRegistryRejectsBadInput(t *testing.T) {
	reg := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }

	require.True(t, IsParameterError(reg.Register("", noop)))
	require.True(t, IsParameterError(reg.Register("nilfn", nil)))
}

func TestRegistryUnknownNameIsParameterError(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Resolve("ghost")
	require.True(t, IsParameterError(err))
	require.Contains(t, err.Error(), "ghost")
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(name, noop))
	}
	require.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}
