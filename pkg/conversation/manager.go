package conversation

// Manager owns an ordered conversation log and its retention policy.
// A Manager instance is not safe for concurrent mutation: each unit of
// work (one agent runtime) owns exactly one Manager.
type Manager interface {
	// Add appends a message to the log.
	Add(msg Message)

	// Fetch returns up to windowSize of the most recent messages, after
	// the manager's role filter. The returned slice is a copy.
	Fetch(windowSize int) []Message

	// Finalize flushes state to durable storage. In-memory managers
	// treat it as a no-op.
	Finalize() error
}

// DefaultWindow is the fetch window used when a caller passes zero.
const DefaultWindow = 20

func tail(msgs []Message, windowSize int) []Message {
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	if len(msgs) > windowSize {
		msgs = msgs[len(msgs)-windowSize:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
