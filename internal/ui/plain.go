package ui

import (
	"fmt"
	"io"
	"sync"

	"dupvault/internal/progress"
)

// plainPresenter prints one line per coalesced Event, suitable for a
// non-TTY destination such as a redirected log file.
type plainPresenter struct {
	w io.Writer

	mu   sync.Mutex
	last map[progress.Stage]progress.Event
}

func newPlainPresenter(w io.Writer) *plainPresenter {
	return &plainPresenter{w: w, last: make(map[progress.Stage]progress.Event)}
}

func (p *plainPresenter) Present(ev progress.Event) {
	p.mu.Lock()
	p.last[ev.Stage] = ev
	p.mu.Unlock()

	if ev.Done {
		fmt.Fprintf(p.w, "%s: done  %s files  %s  errors %d\n",
			ev.Stage, FormatCount(ev.FilesDone), FormatBytes(ev.BytesDone), ev.Errors)
		return
	}

	if ev.BytesTotal > 0 {
		pct := float64(ev.BytesDone) / float64(ev.BytesTotal) * 100
		fmt.Fprintf(p.w, "%s: %3.0f%%  %s/%s  %s/%s files  %s  eta %s  %s\n",
			ev.Stage, pct,
			FormatBytes(ev.BytesDone), FormatBytes(ev.BytesTotal),
			FormatCount(ev.FilesDone), FormatCount(ev.FilesTotal),
			FormatRate(ev.BytesPerSec), FormatETA(ev.ETA),
			ev.CurrentPath)
		return
	}

	fmt.Fprintf(p.w, "%s: %s/%s files  errors %d  %s\n",
		ev.Stage, FormatCount(ev.FilesDone), FormatCount(ev.FilesTotal), ev.Errors, ev.CurrentPath)
}

func (p *plainPresenter) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return completionSummary(p.last)
}
