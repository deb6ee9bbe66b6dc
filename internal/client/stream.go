package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/tombstone/internal/events"
)

// StreamEvents opens the server's SSE stream and delivers each event on the
// returned channel until ctx is canceled or the connection drops. Topics may
// use NATS-style wildcards; an empty list receives everything.
func (c *HTTPClient) StreamEvents(ctx context.Context, topics []string) (<-chan events.Message, error) {
	path := "/v1/events/stream"
	if len(topics) > 0 {
		path += "?topics=" + url.QueryEscape(strings.Join(topics, ","))
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any client-wide timeout.
	resp, err := (&http.Client{Transport: c.httpClient.Transport}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	ch := make(chan events.Message, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		readSSE(ctx, bufio.NewScanner(resp.Body), ch)
	}()
	return ch, nil
}

// readSSE parses "event:" and "data:" lines, dispatching a message at each
// blank line. Comment lines and ids are ignored.
func readSSE(ctx context.Context, scanner *bufio.Scanner, ch chan<- events.Message) {
	var msg events.Message
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			msg.Data = []byte(data.String())
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
			msg = events.Message{}
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			msg.Topic = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
