package agentchat

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	dataMarker = "data:"

	// DoneEvent marks the end of generation. It is delivered like any other
	// event; recognizing it is the consumer's job.
	DoneEvent = "[DONE]"
)

// ErrStopStream may be returned by an event consumer to end decoding early.
// StreamChat treats it as a clean completion.
var ErrStopStream = errors.New("agentchat: stop stream")

// eventDecoder reassembles server-sent events from a line oriented body.
// Consecutive data lines belong to one event and are joined with "\n"; a blank
// line terminates the event. Data lines that add nothing to an empty buffer
// do not start an event.
type eventDecoder struct {
	r   *bufio.Reader
	buf strings.Builder
}

func newEventDecoder(r io.Reader) *eventDecoder {
	return &eventDecoder{r: bufio.NewReader(r)}
}

// decode feeds every event to emit until the body ends, emit returns an error
// or reading fails. Content still buffered at EOF is flushed as a final event.
func (d *eventDecoder) decode(emit func(event string) error) error {
	for {
		line, err := d.r.ReadString('\n')
		if len(line) > 0 {
			if ferr := d.feed(trimEOL(line), emit); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return d.flush(emit)
			}
			return err
		}
	}
}

func (d *eventDecoder) feed(line string, emit func(string) error) error {
	switch {
	case strings.HasPrefix(line, dataMarker):
		if d.buf.Len() > 0 {
			d.buf.WriteByte('\n')
		}
		d.buf.WriteString(strings.TrimLeft(line[len(dataMarker):], " \t"))
		return nil
	case line == "":
		return d.flush(emit)
	default:
		// comments, event:, id: and retry: fields carry nothing we use
		return nil
	}
}

func (d *eventDecoder) flush(emit func(string) error) error {
	if d.buf.Len() == 0 {
		return nil
	}
	event := d.buf.String()
	d.buf.Reset()
	return emit(event)
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
