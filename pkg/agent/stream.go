package agent

import "context"

// Stream is a lazy, finite, non-restartable sequence of text chunks
// from one agent run: zero or more intermediate tool-feedback chunks
// followed by a final chunk. Consumers pull with Next until it reports
// exhaustion; Final and Err are only meaningful after that.
type Stream struct {
	ch    chan string
	final string
	err   error
}

func newStream() *Stream {
	return &Stream{ch: make(chan string)}
}

// Next blocks for the next chunk. The second return is false once the
// stream is exhausted.
func (s *Stream) Next() (string, bool) {
	text, ok := <-s.ch
	return text, ok
}

// Final returns the final answer text. Valid after exhaustion.
func (s *Stream) Final() string { return s.final }

// Err reports a fatal failure of the run. Valid after exhaustion.
func (s *Stream) Err() error { return s.err }

// Drain consumes the remaining chunks and returns the final text.
func (s *Stream) Drain() (string, error) {
	for {
		if _, ok := s.Next(); !ok {
			return s.final, s.err
		}
	}
}

// emit hands a chunk to the consumer, giving up if the run is
// cancelled while the consumer is not pulling.
func (s *Stream) emit(ctx context.Context, text string) bool {
	select {
	case s.ch <- text:
		return true
	case <-ctx.Done():
		return false
	}
}

// close publishes the final text and error, then releases consumers.
// final/err writes happen before the channel close, so a reader that
// observed exhaustion sees them safely.
func (s *Stream) close(final string, err error) {
	s.final = final
	s.err = err
	close(s.ch)
}
