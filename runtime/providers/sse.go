package providers

import (
	"bufio"
	"bytes"
	"io"
)

// DoneSentinel terminates an OpenAI-style SSE stream.
const DoneSentinel = "[DONE]"

// maxSSELineSize bounds a single SSE line.
const maxSSELineSize = 1024 * 1024

// SSEScanner scans Server-Sent Events (SSE) streams
type SSEScanner struct {
	scanner *bufio.Scanner
	data    string
	err     error
}

// NewSSEScanner creates a new SSE scanner
func NewSSEScanner(r io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEScanner{
		scanner: scanner,
	}
}

// Scan advances to the next data event. Comments, event names, ids, and
// blank lines are skipped.
func (s *SSEScanner) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()

		if len(line) == 0 {
			continue
		}

		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			s.data = string(bytes.TrimPrefix(rest, []byte(" ")))
			return true
		}
	}

	s.err = s.scanner.Err()
	return false
}

// Data returns the current event data
func (s *SSEScanner) Data() string {
	return s.data
}

// Err returns any scanning error
func (s *SSEScanner) Err() error {
	return s.err
}
