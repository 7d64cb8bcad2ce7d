package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
)

type SamplingMethod int

const (
	SampleUnknown SamplingMethod = iota
	SampleTimeBlock
	SampleEvent
)

var (
	ErrUnknownMethod    = errors.New("unknown sampling method")
	ErrInvalidRetention = errors.New("retention fraction out of [0,1]")
)

// AvailableMethods lists the CLI names of the sampling methods
var AvailableMethods = []SamplingMethod{SampleTimeBlock, SampleEvent}

func (m SamplingMethod) String() string {
	switch m {
	case SampleTimeBlock:
		return "timeBlock"
	case SampleEvent:
		return "event"
	case SampleUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

func ParseSamplingMethod(s string) (SamplingMethod, error) {
	for _, m := range AvailableMethods {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return SampleUnknown, errors.Wrapf(ErrUnknownMethod, "%q", s)
}

func ListAvailableMethods() string {
	names := make([]string, len(AvailableMethods))
	for i, m := range AvailableMethods {
		names[i] = m.String()
	}
	return strings.Join(names, ", ")
}

// Sampler gathers everything the thinning pass needs
type Sampler struct {
	AcqFile       string
	OutputFile    string // empty means stdout
	RetentionFrac float64
	Method        string

	// nil means a random seed
	Seed    *uint64
	Verbose int64

	// metrics for the thinning pass
	Meter metric.Meter
}

func (c *Sampler) SamplingMethod() (SamplingMethod, error) {
	return ParseSamplingMethod(c.Method)
}

func (c *Sampler) ToStdout() bool {
	return c.OutputFile == "" || c.OutputFile == "-"
}

func (c *Sampler) Validate() error {
	if c.AcqFile == "" {
		return fmt.Errorf("no acquisition file given")
	}
	// NaN fails both comparisons
	if !(c.RetentionFrac >= 0 && c.RetentionFrac <= 1) {
		return errors.Wrapf(ErrInvalidRetention, "got %v", c.RetentionFrac)
	}
	if _, err := c.SamplingMethod(); err != nil {
		return err
	}
	return nil
}
