package explorer

// EventType discriminates the engine's event stream.
type EventType string

const (
	// EventProgress carries the 0–100 loading percentage.
	EventProgress EventType = "progress"
	// EventGraphDelta reports nodes/edges added by one resolution.
	EventGraphDelta EventType = "graph-delta"
	// EventAccountCount reports discovered vs loaded account totals.
	EventAccountCount EventType = "account-count"
	// EventWarning carries non-fatal conditions (drops, tier fallbacks,
	// endpoint trouble).
	EventWarning EventType = "warning"
)

// Severity grades warnings.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Event is one entry on the engine's event stream. Consumers that fall
// behind lose events; the stream is advisory, the graph is the truth.
type Event struct {
	Type EventType

	// EventProgress
	Progress float64

	// EventGraphDelta
	Signature  string
	NodesAdded int
	EdgesAdded int

	// EventAccountCount
	Accounts int
	Loaded   int

	// EventWarning
	Severity Severity
	Message  string
}
