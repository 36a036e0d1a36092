package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestRenderBar(t *testing.T) {
	testCases := []struct {
		current, total int64
		exp            string
	}{
		{current: 0, total: 100, exp: "0.0%"},
		{current: 50, total: 100, exp: "50.0%"},
		{current: 150, total: 100, exp: "100.0%"},
		{current: 10, total: 0, exp: "100.0%"},
	}
	for _, tc := range testCases {
		if got := RenderBar(tc.current, tc.total, 20); !strings.Contains(got, tc.exp) {
			t.Errorf("RenderBar(%d, %d) = %q, exp it to contain %q", tc.current, tc.total, got, tc.exp)
		}
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, "file.iso")
	bar.interval = time.Hour
	bar.Update(10, 100)
	bar.Update(20, 100) // inside the redraw interval, dropped
	bar.Update(100, 100)
	bar.Finish()

	out := buf.String()
	if n := strings.Count(out, "\r"); n != 2 {
		t.Errorf("exp 2 redraws, got %d in %q", n, out)
	}
	if !strings.Contains(out, "100.0%") || !strings.HasSuffix(out, "\n") {
		t.Errorf("unexpected final output %q", out)
	}
}
