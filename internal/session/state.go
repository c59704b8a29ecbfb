package session

// State is the position of a session in its request loop.
type State int

const (
	AwaitParams State = iota
	ReceivingFiles
	Aggregating
	SendingResults
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitParams:
		return "await_params"
	case ReceivingFiles:
		return "receiving_files"
	case Aggregating:
		return "aggregating"
	case SendingResults:
		return "sending_results"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
