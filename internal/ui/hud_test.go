package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"dupvault/internal/progress"
)

func TestHudPresenterDrawsProgressBarAndClearsOnNextDraw(t *testing.T) {
	var out bytes.Buffer
	p := newHUDPresenter(&out)

	p.Present(progress.Event{
		Stage: progress.StageCopy, FilesDone: 5, FilesTotal: 10,
		BytesDone: 512, BytesTotal: 1024, CurrentPath: "photo.jpg",
	})

	first := out.String()
	assert.Contains(t, first, "copy")
	assert.Contains(t, first, "□")
	assert.Contains(t, first, "photo.jpg")

	out.Reset()
	p.Present(progress.Event{
		Stage: progress.StageCopy, FilesDone: 6, FilesTotal: 10,
		BytesDone: 600, BytesTotal: 1024,
	})
	// Clearing the previous draw emits a cursor-up escape sequence.
	assert.Contains(t, out.String(), "\033[")
}

func TestHudPresenterMultipleStagesEachGetALine(t *testing.T) {
	var out bytes.Buffer
	p := newHUDPresenter(&out)

	p.Present(progress.Event{Stage: progress.StageScan, FilesDone: 100, Done: true})
	out.Reset()
	p.Present(progress.Event{Stage: progress.StageCopy, FilesDone: 1, FilesTotal: 100})

	assert.Equal(t, 2, p.drawnLines)
}

func TestHudPresenterSummary(t *testing.T) {
	p := newHUDPresenter(&bytes.Buffer{})
	p.Present(progress.Event{Stage: progress.StageVerify, FilesDone: 40, Done: true})

	summary := p.Summary()
	assert.Contains(t, summary, "verify: done")
	assert.Contains(t, summary, "files 40")
}

func TestTruncPath(t *testing.T) {
	assert.Equal(t, "short.txt", truncPath("short.txt", 20))
	assert.Equal(t, "...ry/long/path.txt", truncPath("a/very/long/directory/long/path.txt", 19))
	assert.Equal(t, "ab", truncPath("abcdef", 2))
}
