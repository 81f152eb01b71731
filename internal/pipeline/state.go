package pipeline

// State is a step of the publishes state machine.
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateEnriching
	StateTransforming
	StateLoading
	StateWatermarkAdvance
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateEnriching:
		return "enriching"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateWatermarkAdvance:
		return "watermark_advance"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
