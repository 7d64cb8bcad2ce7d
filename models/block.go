package models

// CoincidenceEvent is a single detected coincidence: the pair of detectors that
// fired, the TOF bin and the energy bin of each detector.
type CoincidenceEvent struct {
	DetectorIDs   [2]uint32
	TOFIdx        uint32
	EnergyIndices [2]uint32
}

// TimeBlock groups the events detected within one time slot of the acquisition.
// HasDelayed is false when the acquisition does not record delayed coincidences,
// which is different from an empty (but present) delayed list.
type TimeBlock struct {
	ID            uint32
	PromptEvents  []CoincidenceEvent
	DelayedEvents []CoincidenceEvent
	HasDelayed    bool
}

func (tb *TimeBlock) NumPrompts() int {
	return len(tb.PromptEvents)
}

func (tb *TimeBlock) NumDelayed() int {
	if !tb.HasDelayed {
		return 0
	}
	return len(tb.DelayedEvents)
}

// PlaceholderTimeBlock returns the empty block appended to outputs that would
// otherwise carry no time blocks at all.
func PlaceholderTimeBlock() TimeBlock {
	return TimeBlock{
		ID:           0,
		PromptEvents: []CoincidenceEvent{},
	}
}
