package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/segfetch/internal/utils"
)

// ProgressBar renders a single updating line for one fetch.
type ProgressBar struct {
	mu       sync.Mutex
	w        io.Writer
	label    string
	width    int
	start    time.Time
	lastDraw time.Time
	interval time.Duration
}

func NewProgressBar(w io.Writer, label string) *ProgressBar {
	return &ProgressBar{
		w:        w,
		label:    label,
		width:    30,
		start:    time.Now(),
		interval: 100 * time.Millisecond,
	}
}

// Update redraws at most once per interval, and always on completion.
func (p *ProgressBar) Update(current, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current < total && time.Since(p.lastDraw) < p.interval {
		return
	}
	p.lastDraw = time.Now()
	speed := utils.FormatSpeed(current, time.Since(p.start))
	fmt.Fprintf(p.w, "\r%s %s%s", p.label, RenderBar(current, total, p.width), FDebug(speed))
}

func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
}

func RenderBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	if current < 0 {
		current = 0
	}
	if current > total {
		current = total
	}
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}
