package pattern

import (
	"strings"
	"testing"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "literal", pattern: "netflix"},
		{name: "alternation", pattern: "uber|lyft"},
		{name: "anchored", pattern: `^AMZN\s+MKTP`},
		{name: "empty", pattern: "", wantErr: true},
		{name: "unbalanced", pattern: "netflix(", wantErr: true},
		{name: "too long", pattern: strings.Repeat("a", MaxPatternLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pattern)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidPattern)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCache_MatchStringIsCaseInsensitive(t *testing.T) {
	c := NewCache()

	ok, err := c.MatchString("netflix", "NETFLIX.COM")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.MatchString("netflix", "Spotify")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, c.Len())
}

func TestCache_InvalidPatternCached(t *testing.T) {
	c := NewCache()

	_, err := c.MatchString("[unclosed", "anything")
	require.ErrorIs(t, err, common.ErrInvalidPattern)

	_, err = c.Compile("[unclosed")
	require.ErrorIs(t, err, common.ErrInvalidPattern)
	assert.Equal(t, 1, c.Len())
}

func TestCache_CompileReturnsSameRegexp(t *testing.T) {
	c := NewCache()

	first, err := c.Compile("acme")
	require.NoError(t, err)
	second, err := c.Compile("acme")
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestCache_MatchesWholeInput(t *testing.T) {
	c := NewCache()
	text := strings.Repeat("x", 4096) + " NETFLIX"

	ok, err := c.MatchString("netflix$", text)
	require.NoError(t, err)
	assert.True(t, ok, "anchored patterns see the end of long text")
}
