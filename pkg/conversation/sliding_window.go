package conversation

// SlidingWindowManager keeps the whole conversation in memory and serves
// the most recent window on Fetch. Messages pushed out of the window stay
// in memory; nothing is ever dropped.
type SlidingWindowManager struct {
	messages []Message
}

func NewSlidingWindowManager() *SlidingWindowManager {
	return &SlidingWindowManager{}
}

func (m *SlidingWindowManager) Add(msg Message) {
	m.messages = append(m.messages, msg)
}

func (m *SlidingWindowManager) Fetch(windowSize int) []Message {
	return tail(m.messages, windowSize)
}

func (m *SlidingWindowManager) Finalize() error {
	return nil
}

// Len reports the total number of retained messages.
func (m *SlidingWindowManager) Len() int {
	return len(m.messages)
}
