package events

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// jsonSink serializes events as JSON lines to a configurable writer.
type jsonSink struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewJSONSink returns a Handler that writes each event as one JSON line
// prefixed with "EVENT: " for easy filtering. A nil writer defaults to
// os.Stdout.
func NewJSONSink(w io.Writer) Handler {
	if w == nil {
		w = os.Stdout
	}
	sink := &jsonSink{writer: w}
	return sink.handle
}

func (s *jsonSink) handle(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bytes, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = s.writer.Write(append([]byte("EVENT: "), append(bytes, '\n')...))
}
