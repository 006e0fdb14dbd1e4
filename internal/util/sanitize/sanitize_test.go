package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"empty", "", 100, ""},
		{"normal", "release planning", 100, "release planning"},
		{"with control chars", "pla\x00nn\x07ing", 100, "planning"},
		{"truncate", "a very long thread name", 8, "a very l"},
		{"trim whitespace", "  standup  ", 100, "standup"},
		{"newlines stripped", "line1\nline2", 100, "line1line2"},
		{"unicode", "日本語スレッド", 100, "日本語スレッド"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.input, tt.maxLen)
			assert.Equal(t, tt.want, got, "Name(%q, %d)", tt.input, tt.maxLen)
		})
	}
}
