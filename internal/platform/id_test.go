package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()

	require.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestNewSecret(t *testing.T) {
	s := NewSecret("spl_")

	assert.True(t, strings.HasPrefix(s, "spl_"))
	// 4-char prefix + 64 hex chars.
	assert.Len(t, s, 68)
	assert.NotEqual(t, s, NewSecret("spl_"))
}
