package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidInterval(t *testing.T) {
	assert.True(t, IsValidInterval("Day"))
	assert.True(t, IsValidInterval("Minute"))
	assert.False(t, IsValidInterval("day"))
	assert.False(t, IsValidInterval("Day); DROP TABLE x"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	// "₦" is three bytes; cutting inside it drops the partial rune.
	assert.Equal(t, "a", Truncate("a₦", 2))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", SanitizeInput("  <b>hi</b> ", 100))
	assert.Equal(t, "&lt;", SanitizeInput("<script>", 4))
}

func TestGenerateSessionID(t *testing.T) {
	a := GenerateSessionID()
	b := GenerateSessionID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "sess_"))
	assert.True(t, ValidSessionID(a))
}

func TestValidSessionID(t *testing.T) {
	assert.True(t, ValidSessionID("test_session_123"))
	assert.False(t, ValidSessionID(""))
	assert.False(t, ValidSessionID("has space"))
	assert.False(t, ValidSessionID("<script>"))
	assert.False(t, ValidSessionID(strings.Repeat("a", 101)))
}
