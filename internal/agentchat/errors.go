package agentchat

import (
	"fmt"
	"strings"
)

// TransportError reports a failed exchange with the agent chat service:
// either a non-2xx response (StatusCode and Body set) or a connection, timeout
// or read failure (Err set). Body is the response body exactly as received.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent chat service returned status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
	}
	return fmt.Sprintf("agent chat service unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
