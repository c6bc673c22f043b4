package ui

import (
	"fmt"
	"io"
	"sync"

	"dupvault/internal/progress"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

const (
	sparklineWidth   = 20
	progressBarWidth = 20
)

// hudPresenter redraws a block with one line per active stage in place,
// using the cursor-up-and-clear trick rather than a full TUI library.
type hudPresenter struct {
	w io.Writer

	mu         sync.Mutex
	last       map[progress.Stage]progress.Event
	history    map[progress.Stage][]float64 // recent BytesPerSec samples, oldest first
	drawnLines int
}

func newHUDPresenter(w io.Writer) *hudPresenter {
	return &hudPresenter{
		w:       w,
		last:    make(map[progress.Stage]progress.Event),
		history: make(map[progress.Stage][]float64),
	}
}

func (p *hudPresenter) Present(ev progress.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last[ev.Stage] = ev
	h := append(p.history[ev.Stage], ev.BytesPerSec)
	if len(h) > sparklineWidth {
		h = h[len(h)-sparklineWidth:]
	}
	p.history[ev.Stage] = h

	p.redraw()
}

func (p *hudPresenter) redraw() {
	p.clear()

	lines := 0
	for _, stage := range stageOrder {
		ev, ok := p.last[stage]
		if !ok {
			continue
		}
		p.writeStageLine(stage, ev)
		lines++
	}
	p.drawnLines = lines
}

func (p *hudPresenter) writeStageLine(stage progress.Stage, ev progress.Event) {
	if ev.Done {
		icon := "✓"
		if ev.Errors > 0 {
			icon = "✗"
		}
		fmt.Fprintf(p.w, "%-8s %s  %s files  %s%s\n",
			stage, icon, FormatCount(ev.FilesDone), FormatBytes(ev.BytesDone), ansiReset)
		return
	}

	spark := Sparkline(p.history[stage], sparklineWidth)

	var pct float64
	if ev.BytesTotal > 0 {
		pct = float64(ev.BytesDone) / float64(ev.BytesTotal)
	} else if ev.FilesTotal > 0 {
		pct = float64(ev.FilesDone) / float64(ev.FilesTotal)
	}
	bar := ProgressBar(pct, progressBarWidth)

	path := ev.CurrentPath
	if path != "" {
		path = ansiDim + truncPath(path, 40) + ansiReset
	}

	errSuffix := ""
	if ev.Errors > 0 {
		errSuffix = fmt.Sprintf("  %derr", ev.Errors)
	}

	fmt.Fprintf(p.w, "%-8s %s  %3.0f%%  %s  %s/%s  %s  eta %s%s  %s\n",
		stage, spark, pct*100, bar,
		FormatCount(ev.FilesDone), FormatCount(ev.FilesTotal),
		FormatRate(ev.BytesPerSec), FormatETA(ev.ETA), errSuffix, path)
}

func (p *hudPresenter) clear() {
	if p.drawnLines == 0 {
		return
	}
	fmt.Fprintf(p.w, "\033[%dA\033[J", p.drawnLines)
	p.drawnLines = 0
}

func (p *hudPresenter) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return completionSummary(p.last)
}

// truncPath shortens a path to fit within maxLen characters.
func truncPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-maxLen+3:]
}
