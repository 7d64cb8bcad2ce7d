package core

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/probe-lab/lmsampler/config"
	"github.com/probe-lab/lmsampler/models"
)

type TimeBlockReader interface {
	ReadTimeBlock() (*models.TimeBlock, error)
}

type AcquisitionWriter interface {
	WriteHeader(*models.Header) error
	WriteTimeBlocks(...*models.TimeBlock) error
}

type ThinnerConfig struct {
	Method        config.SamplingMethod
	RetentionFrac float64
	Rand          Rand

	// optional, no metrics are exported if nil
	Meter metric.Meter
}

// Thinner streams the time blocks of an acquisition through the configured
// sampler and writes what survives.
type Thinner struct {
	cfg   *ThinnerConfig
	stats Stats

	// Metrics
	blocksSeen    metric.Int64Counter
	blocksWritten metric.Int64Counter
	promptsSeen   metric.Int64Counter
	promptsKept   metric.Int64Counter
	delayedSeen   metric.Int64Counter
	delayedKept   metric.Int64Counter
}

func NewThinner(cfg *ThinnerConfig) (*Thinner, error) {
	switch cfg.Method {
	case config.SampleTimeBlock, config.SampleEvent:
	default:
		return nil, errors.Wrapf(config.ErrUnknownMethod, "%s", cfg.Method)
	}
	if !(cfg.RetentionFrac >= 0 && cfg.RetentionFrac <= 1) {
		return nil, errors.Wrapf(config.ErrInvalidRetention, "got %v", cfg.RetentionFrac)
	}
	if cfg.Rand == nil {
		return nil, fmt.Errorf("no random generator given")
	}
	if cfg.Meter == nil {
		cfg.Meter = noop.NewMeterProvider().Meter("lmsampler")
	}

	t := &Thinner{
		cfg:   cfg,
		stats: Stats{Method: cfg.Method},
	}
	if err := t.initMetrics(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Thinner) initMetrics() (err error) {
	counters := []struct {
		name    string
		desc    string
		counter *metric.Int64Counter
	}{
		{"time_blocks_seen", "Time blocks read from the input", &t.blocksSeen},
		{"time_blocks_written", "Time blocks written to the output, placeholder included", &t.blocksWritten},
		{"prompt_events_seen", "Prompt events read from the input", &t.promptsSeen},
		{"prompt_events_kept", "Prompt events written to the output", &t.promptsKept},
		{"delayed_events_seen", "Delayed events read from the input", &t.delayedSeen},
		{"delayed_events_kept", "Delayed events written to the output", &t.delayedKept},
	}
	for _, c := range counters {
		*c.counter, err = t.cfg.Meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return fmt.Errorf("new %s counter: %w", c.name, err)
		}
	}
	return nil
}

// Thin copies the header to w and streams every time block of r through the
// sampler. Once r is exhausted, a placeholder block is appended if the
// output would otherwise carry nothing. Closing r and w is up to the caller.
func (t *Thinner) Thin(ctx context.Context, header *models.Header, r TimeBlockReader, w AcquisitionWriter) (Stats, error) {
	if err := w.WriteHeader(header); err != nil {
		return t.stats, errors.Wrap(err, "copying header")
	}

	for {
		if err := ctx.Err(); err != nil {
			return t.stats, err
		}

		tb, err := r.ReadTimeBlock()
		if err == io.EOF {
			break
		} else if err != nil {
			return t.stats, errors.Wrapf(err, "reading time block %d", t.stats.TimeBlocks)
		}

		if err := t.process(ctx, tb, w); err != nil {
			return t.stats, err
		}
	}

	err := t.finalize(ctx, w)
	return t.stats, err
}

func (t *Thinner) process(ctx context.Context, tb *models.TimeBlock, w AcquisitionWriter) error {
	t.stats.TimeBlocks++
	t.stats.Prompts += int64(tb.NumPrompts())
	t.stats.Delayed += int64(tb.NumDelayed())
	t.blocksSeen.Add(ctx, 1)
	t.promptsSeen.Add(ctx, int64(tb.NumPrompts()))
	t.delayedSeen.Add(ctx, int64(tb.NumDelayed()))

	switch t.cfg.Method {
	case config.SampleTimeBlock:
		verdict := SampleTimeBlock(t.cfg.Rand, tb, t.cfg.RetentionFrac)
		kept, ok := verdict.(Kept)
		if !ok {
			return nil
		}
		if err := t.write(ctx, w, kept.Block); err != nil {
			return err
		}
		t.stats.TimeBlocksKept++
		t.promptsKept.Add(ctx, int64(kept.Block.NumPrompts()))
		t.delayedKept.Add(ctx, int64(kept.Block.NumDelayed()))

	case config.SampleEvent:
		out, counts := SampleEvents(t.cfg.Rand, tb, t.cfg.RetentionFrac)
		if err := t.write(ctx, w, out); err != nil {
			return err
		}
		t.stats.PromptsKept += int64(counts.Prompts)
		t.stats.DelayedKept += int64(counts.Delayed)
		t.promptsKept.Add(ctx, int64(counts.Prompts))
		t.delayedKept.Add(ctx, int64(counts.Delayed))
	}
	return nil
}

func (t *Thinner) write(ctx context.Context, w AcquisitionWriter, tb *models.TimeBlock) error {
	if err := w.WriteTimeBlocks(tb); err != nil {
		return errors.Wrapf(err, "writing time block %d", tb.ID)
	}
	t.blocksWritten.Add(ctx, 1)
	return nil
}

func (t *Thinner) finalize(ctx context.Context, w AcquisitionWriter) error {
	if !t.stats.Empty() {
		return nil
	}
	log.WithFields(log.Fields{
		"method":      t.cfg.Method,
		"time_blocks": t.stats.TimeBlocks,
		"prompts":     t.stats.Prompts,
	}).Warn("no prompt or time block were preserved, appending an empty time block")

	placeholder := models.PlaceholderTimeBlock()
	if err := t.write(ctx, w, &placeholder); err != nil {
		return errors.Wrap(err, "appending placeholder time block")
	}
	t.stats.PlaceholderWritten = true
	return nil
}
