package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUserAgent(t *testing.T) {
	short := "Mozilla/5.0 (X11; Linux x86_64)"
	assert.Equal(t, short, TruncateUserAgent(short))

	long := strings.Repeat("a", MaxUserAgentLength+100)
	assert.Len(t, TruncateUserAgent(long), MaxUserAgentLength)
}

func TestTruncateUserAgent_MultiByteBoundary(t *testing.T) {
	// A multi-byte rune straddling the cut must not be split in half; the
	// stored value has to stay valid UTF-8 or the insert is rejected and
	// the audit row is lost.
	ua := strings.Repeat("a", MaxUserAgentLength-1) + strings.Repeat("é", 40)

	got := TruncateUserAgent(ua)

	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), MaxUserAgentLength)
	assert.Equal(t, strings.Repeat("a", MaxUserAgentLength-1), got)
}
