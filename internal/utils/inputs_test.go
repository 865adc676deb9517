package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		reasked bool
	}{
		{"y\n", true, false},
		{"YES\n", true, false},
		{"n\n", false, false},
		{"maybe\nyes\n", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := Confirm(strings.NewReader(tt.input), &out, "Delete task?")
		if got != tt.want {
			t.Errorf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Delete task? (y/n): ") {
			t.Errorf("prompt not written, got %q", out.String())
		}
		if strings.Contains(out.String(), "Please answer y or n.") != tt.reasked {
			t.Errorf("input %q: unexpected re-ask in %q", tt.input, out.String())
		}
	}
}
