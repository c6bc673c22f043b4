package ui

import (
	"fmt"
	"strings"

	"dupvault/internal/progress"
)

var stageOrder = []progress.Stage{
	progress.StageScan,
	progress.StageHash,
	progress.StagePlan,
	progress.StageCopy,
	progress.StageVerify,
}

// completionSummary builds one line per stage that has reported at least
// one event, in pipeline order.
// Format per stage: copy: done ✓  files 48,917  size 2.1 GB  errors 0
func completionSummary(last map[progress.Stage]progress.Event) string {
	var lines []string
	for _, stage := range stageOrder {
		ev, ok := last[stage]
		if !ok {
			continue
		}
		icon := "✓"
		if ev.Errors > 0 {
			icon = "✗"
		}
		line := fmt.Sprintf("%s: done %s  files %s  size %s  errors %d",
			stage, icon, FormatCount(ev.FilesDone), FormatBytes(ev.BytesDone), ev.Errors)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
