package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiProviderNone(t *testing.T) {
	provider := NewMultiProvider()
	value, _ := provider.Get(t.Context(), "TEST1")

	assert.Empty(t, value)
}

func TestMultiProviderDelegate(t *testing.T) {
	provider := NewMultiProvider(&alwaysFound{}, &neverFound{})
	value, _ := provider.Get(t.Context(), "TEST2")

	assert.Equal(t, "FOUND", value)
}

func TestMultiProviderTryInOrder(t *testing.T) {
	provider := NewMultiProvider(&neverFound{}, &alwaysFound{})
	value, _ := provider.Get(t.Context(), "TEST3")

	assert.Equal(t, "FOUND", value)
}

type neverFound struct{}

func (p *neverFound) Get(context.Context, string) (string, bool) {
	return "", false
}

type alwaysFound struct{}

func (p *alwaysFound) Get(context.Context, string) (string, bool) {
	return "FOUND", true
}
