package ui

import (
	"sync"

	"dupvault/internal/progress"
)

// quietPresenter records events but produces no output until asked for a
// final summary.
type quietPresenter struct {
	mu   sync.Mutex
	last map[progress.Stage]progress.Event
}

func newQuietPresenter() *quietPresenter {
	return &quietPresenter{last: make(map[progress.Stage]progress.Event)}
}

func (p *quietPresenter) Present(ev progress.Event) {
	p.mu.Lock()
	p.last[ev.Stage] = ev
	p.mu.Unlock()
}

func (p *quietPresenter) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return completionSummary(p.last)
}
