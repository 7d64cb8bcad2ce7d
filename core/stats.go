package core

import (
	"fmt"
	"strconv"

	"github.com/probe-lab/lmsampler/config"
)

// Stats counts what a thinning pass has seen and kept. Which of the kept
// counters are meaningful depends on the sampling method.
type Stats struct {
	Method config.SamplingMethod

	TimeBlocks     int64
	TimeBlocksKept int64
	Prompts        int64
	PromptsKept    int64
	Delayed        int64
	DelayedKept    int64

	PlaceholderWritten bool
}

// Empty reports whether the pass retained nothing worth writing: no time block
// in timeBlock mode, no prompt in event mode.
func (s *Stats) Empty() bool {
	switch s.Method {
	case config.SampleEvent:
		return s.PromptsKept == 0
	default:
		return s.TimeBlocksKept == 0
	}
}

// Summary returns the human readable lines reporting kept vs seen counts for
// the sampling method of the pass.
func (s *Stats) Summary() []string {
	switch s.Method {
	case config.SampleEvent:
		lines := []string{keptLine("prompts", s.PromptsKept, s.Prompts)}
		if s.Delayed != 0 {
			lines = append(lines, keptLine("delayed", s.DelayedKept, s.Delayed))
		}
		return lines
	default:
		return []string{keptLine("time blocks", s.TimeBlocksKept, s.TimeBlocks)}
	}
}

func keptLine(what string, kept, total int64) string {
	pct := strconv.FormatFloat(percent(kept, total), 'f', -1, 64)
	return fmt.Sprintf("%s: %d kept out of %d (%s%%)", what, kept, total, pct)
}

// an empty input reports 0%
func percent(kept, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(kept) / float64(total) * 100.0
}
