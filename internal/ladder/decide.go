package ladder

// Use is the extraction method a Decision selects.
type Use int

const (
	UseDOM Use = iota
	UseVision
)

func (u Use) String() string {
	if u == UseVision {
		return "vision"
	}
	return "dom"
}

// Reason explains a Decision.
type Reason string

const (
	// ReasonForcedDOM: mode dom never escalates.
	ReasonForcedDOM Reason = "dom_mode"
	// ReasonRequested: mode vision or the visual extraction flag.
	ReasonRequested Reason = "requested"
	// ReasonHeuristic: auto mode judged the DOM outcome too weak.
	ReasonHeuristic Reason = "heuristic"
	// ReasonConfident: auto mode kept a good DOM outcome.
	ReasonConfident Reason = "confident"
)

// WarnAutoSwitched is recorded whenever auto mode escalates on its own.
const WarnAutoSwitched = "Auto mode switched to vision due to extraction heuristics"

// Decision is the outcome of the escalation rule.
type Decision struct {
	Use    Use
	Reason Reason
}

// Warnings returns the escalation-path warnings the decision adds.
func (d Decision) Warnings() []string {
	if d.Reason == ReasonHeuristic {
		return []string{WarnAutoSwitched}
	}
	return nil
}

// Decide applies the escalation rule. It has no side effects.
func Decide(mode Mode, visual bool, needsVision bool) Decision {
	switch {
	case mode == ModeDOM:
		return Decision{Use: UseDOM, Reason: ReasonForcedDOM}
	case mode == ModeAuto && needsVision:
		return Decision{Use: UseVision, Reason: ReasonHeuristic}
	case mode == ModeVision || visual:
		return Decision{Use: UseVision, Reason: ReasonRequested}
	default:
		return Decision{Use: UseDOM, Reason: ReasonConfident}
	}
}
