package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoFailProviderFound(t *testing.T) {
	t.Setenv("TEST1", "VALUE1")

	provider := NewNoFailProvider(NewOsEnvProvider())
	value, found := provider.Get(t.Context(), "TEST1")

	require.True(t, found)
	assert.Equal(t, "VALUE1", value)
}

func TestNoFailProviderNotFound(t *testing.T) {
	t.Setenv("TEST2", "")

	provider := NewNoFailProvider(NewOsEnvProvider())
	value, found := provider.Get(t.Context(), "TEST2")

	require.True(t, found)
	assert.Empty(t, value)
}

func TestNoFailProviderIgnoreError(t *testing.T) {
	provider := NewNoFailProvider(&alwaysFailProvider{})
	value, found := provider.Get(t.Context(), "TEST3")

	require.True(t, found)
	assert.Empty(t, value)
}

type alwaysFailProvider struct{}

func (p *alwaysFailProvider) Get(context.Context, string) (string, bool) {
	return "Ignored", false
}
