package ftp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	t.Run("DefaultLength", func(t *testing.T) {
		pw, err := GeneratePassword(0)
		require.NoError(t, err)
		assert.Len(t, pw, DefaultPasswordLength)
	})

	t.Run("Alphabet", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			pw, err := GeneratePassword(32)
			require.NoError(t, err)
			require.Len(t, pw, 32)
			for _, r := range pw {
				assert.True(t, strings.ContainsRune(PasswordAlphabet, r), "unexpected rune %q", r)
			}
		}
	})

	t.Run("Distinct", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			pw, err := GeneratePassword(12)
			require.NoError(t, err)
			assert.False(t, seen[pw])
			seen[pw] = true
		}
	})
}
