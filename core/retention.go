package core

import (
	"math/rand/v2"

	"github.com/probe-lab/lmsampler/models"
)

// Rand is the source of uniform draws in [0,1) used by the samplers
type Rand interface {
	Float64() float64
}

// NewRand returns the generator shared by a whole thinning pass. A nil seed
// picks a random one, a given seed makes the pass reproducible.
func NewRand(seed *uint64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(*seed, *seed))
}

// BlockVerdict is the outcome of SampleTimeBlock, either Kept or Dropped.
type BlockVerdict interface {
	isBlockVerdict()
}

// Kept carries the retained time block, untouched
type Kept struct {
	Block *models.TimeBlock
}

// Dropped signals that nothing of the time block has to be written
type Dropped struct{}

func (Kept) isBlockVerdict()    {}
func (Dropped) isBlockVerdict() {}

// SampleTimeBlock keeps the whole time block with probability retentionFrac.
// It consumes exactly one draw from rng.
func SampleTimeBlock(rng Rand, tb *models.TimeBlock, retentionFrac float64) BlockVerdict {
	if rng.Float64() < retentionFrac {
		return Kept{Block: tb}
	}
	return Dropped{}
}

// KeepCounts is the number of prompt and delayed events that survived the
// event sampling of a time block.
type KeepCounts struct {
	Prompts int
	Delayed int
}

// SampleEvents keeps every prompt and delayed event of the block independently
// with probability retentionFrac, preserving their order. The returned block
// reuses the id of the given one, and carries a delayed list only if the input
// did. One draw is consumed per event.
func SampleEvents(rng Rand, tb *models.TimeBlock, retentionFrac float64) (*models.TimeBlock, KeepCounts) {
	out := &models.TimeBlock{
		ID:           tb.ID,
		PromptEvents: sampleEventList(rng, tb.PromptEvents, retentionFrac),
		HasDelayed:   tb.HasDelayed,
	}
	counts := KeepCounts{Prompts: len(out.PromptEvents)}

	if tb.HasDelayed {
		out.DelayedEvents = sampleEventList(rng, tb.DelayedEvents, retentionFrac)
		counts.Delayed = len(out.DelayedEvents)
	}
	return out, counts
}

func sampleEventList(rng Rand, evs []models.CoincidenceEvent, retentionFrac float64) []models.CoincidenceEvent {
	kept := make([]models.CoincidenceEvent, 0, int(float64(len(evs))*retentionFrac)+1)
	for _, ev := range evs {
		if rng.Float64() < retentionFrac {
			kept = append(kept, ev)
		}
	}
	return kept
}
