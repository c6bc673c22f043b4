package ui

import (
	"io"

	"dupvault/internal/progress"
)

// Presenter consumes coalesced progress.Events and displays them. It
// satisfies progress.Presenter directly, so a Dispatcher can drive it.
type Presenter interface {
	Present(progress.Event)
	// Summary returns one summary line per stage that has reported an
	// event, built from that stage's last event.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer     io.Writer
	ErrWriter  io.Writer
	IsTTY      bool
	Quiet      bool
	NoProgress bool
}

// NewPresenter creates the appropriate presenter based on configuration.
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return newQuietPresenter()
	}
	if !cfg.IsTTY || cfg.NoProgress {
		return newPlainPresenter(cfg.Writer)
	}
	return newHUDPresenter(cfg.ErrWriter)
}
