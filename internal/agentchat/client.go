// Package agentchat talks to the upstream agent chat service. Each call is one
// HTTP exchange whose text/event-stream body is decoded into events.
package agentchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"agentchain/backend/internal/logging"
	"agentchain/backend/pkg/models"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8000"
	DefaultChatPath       = "/api/chat"
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 120 * time.Second
)

var errReadTimeout = errors.New("read timeout")

// Config holds the connection settings for the agent chat service.
type Config struct {
	BaseURL  string
	ChatPath string
	// ConnectTimeout bounds dialing. Zero selects DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers and for each chunk of
	// the body. Zero disables it.
	ReadTimeout time.Duration
}

// Client is an HTTP implementation of the streaming chat protocol.
type Client struct {
	url         string
	httpClient  *http.Client
	readTimeout time.Duration
	logger      *logging.Logger
}

// NewClient creates a new Client.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	if cfg.ReadTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.ReadTimeout
	}

	return &Client{
		url:         ChatURL(cfg.BaseURL, cfg.ChatPath),
		httpClient:  &http.Client{Transport: transport},
		readTimeout: cfg.ReadTimeout,
		logger:      logger.With("component", "agentchat"),
	}
}

// ChatURL joins base and path. An absolute path wins over the base URL.
func ChatURL(baseURL, chatPath string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if chatPath == "" {
		return base
	}
	if strings.HasPrefix(chatPath, "http://") || strings.HasPrefix(chatPath, "https://") {
		return chatPath
	}
	if !strings.HasPrefix(chatPath, "/") {
		chatPath = "/" + chatPath
	}
	return base + chatPath
}

// StreamChat posts payload and hands every decoded event to consume in
// arrival order. A non-2xx status is returned as *TransportError before any
// event is delivered. If consume returns ErrStopStream the exchange ends
// cleanly; any other consumer error is returned unchanged.
func (c *Client) StreamChat(ctx context.Context, payload *models.ChatPayload, consume func(event string) error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal chat payload: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("agent chat connecting", "url", c.url, "session_id", payload.SessionID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("agent chat failed", "stage", "connecting", "error", err)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			c.logger.Debug("failed to read error body", "status", resp.StatusCode, "error", readErr)
		}
		c.logger.Debug("agent chat failed", "stage", "sending", "status", resp.StatusCode)
		return &TransportError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var reader io.Reader = resp.Body
	if c.readTimeout > 0 {
		idle := newIdleTimeoutReader(resp.Body, c.readTimeout, func() { cancel(errReadTimeout) })
		defer idle.stop()
		reader = idle
	}

	events := 0
	var consumerErr error
	err = newEventDecoder(reader).decode(func(event string) error {
		events++
		if cerr := consume(event); cerr != nil {
			consumerErr = cerr
			return cerr
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(consumerErr, ErrStopStream):
		err = nil
	case consumerErr != nil:
		return consumerErr
	case errors.Is(context.Cause(ctx), errReadTimeout):
		err = &TransportError{Err: fmt.Errorf("%w after %s", errReadTimeout, c.readTimeout)}
	default:
		err = &TransportError{Err: err}
	}
	if err != nil {
		c.logger.Debug("agent chat failed", "stage", "receiving", "events", events, "error", err)
		return err
	}

	c.logger.Debug("agent chat completed", "events", events)
	return nil
}

// ChatOnce runs one exchange and returns the concatenated content of every
// event up to the DONE sentinel. Events that are not JSON objects with a
// string content field are skipped.
func (c *Client) ChatOnce(ctx context.Context, payload *models.ChatPayload) (string, error) {
	var reply strings.Builder
	err := c.StreamChat(ctx, payload, func(event string) error {
		if event == DoneEvent {
			return ErrStopStream
		}
		var fragment map[string]any
		if err := json.Unmarshal([]byte(event), &fragment); err != nil {
			c.logger.Debug("dropping malformed event", "event", event, "error", err)
			return nil
		}
		if content, ok := fragment["content"].(string); ok {
			reply.WriteString(content)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply.String(), nil
}

// idleTimeoutReader fires onTimeout when no bytes arrive for d.
type idleTimeoutReader struct {
	r     io.Reader
	d     time.Duration
	timer *time.Timer
}

func newIdleTimeoutReader(r io.Reader, d time.Duration, onTimeout func()) *idleTimeoutReader {
	return &idleTimeoutReader{r: r, d: d, timer: time.AfterFunc(d, onTimeout)}
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.d)
	}
	return n, err
}

func (r *idleTimeoutReader) stop() {
	r.timer.Stop()
}
