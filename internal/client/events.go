package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Event is one Server-Sent Event received from GET /events.
type Event struct {
	Type string
	Data json.RawMessage
}

// ChangeEvent is the payload of "<resource>.<kind>" events.
type ChangeEvent struct {
	Resource string   `json:"resource"`
	Kind     string   `json:"kind"`
	UserID   string   `json:"user_id"`
	ID       string   `json:"id,omitempty"`
	Tags     []string `json:"tags"`
}

// Events streams the user's events to fn until ctx is done, the server closes
// the stream, or fn returns an error. A cancelled ctx yields ctx.Err().
func (c *Client) Events(ctx context.Context, fn func(Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamer.Do(req)
	if err != nil {
		return fmt.Errorf("client: GET /events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var ev Event
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Type == "" && data.Len() == 0 {
				continue
			}
			ev.Data = json.RawMessage(data.String())
			if err := fn(ev); err != nil {
				return err
			}
			ev = Event{}
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("client: read events: %w", err)
	}
	return nil
}
