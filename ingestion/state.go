package ingestion

// State is a stage of a document's ingestion.
type State int

const (
	StatePending State = iota
	StateChunking
	StateEmbedding
	StateUpserting
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateChunking:
		return "chunking"
	case StateEmbedding:
		return "embedding"
	case StateUpserting:
		return "upserting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition records a document moving between states.
type Transition struct {
	OwnerID    string
	DocumentID string
	From       State
	To         State
	Attempt    int   // 1-based; zero before the first embedding attempt
	Err        error // Set when To is StateFailed
}

// StateObserver is notified of every state transition.
// Implementations must be safe for concurrent use when documents are
// ingested concurrently.
type StateObserver interface {
	OnTransition(t Transition)
}

// StateObserverFunc adapts a function to StateObserver.
type StateObserverFunc func(t Transition)

func (f StateObserverFunc) OnTransition(t Transition) { f(t) }

// ProgressObserver receives progress updates. For a single document done
// counts embedded chunks; for a batch it counts processed documents.
type ProgressObserver interface {
	OnProgress(done, total int)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(done, total int)

func (f ProgressFunc) OnProgress(done, total int) { f(done, total) }

type noopStateObserver struct{}

func (noopStateObserver) OnTransition(Transition) {}

type noopProgress struct{}

func (noopProgress) OnProgress(int, int) {}
