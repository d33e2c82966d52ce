package tradestation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
)

// frameSplitter accumulates raw stream chunks and yields complete
// newline-delimited frames. A partial trailing line stays buffered until
// the next chunk completes it.
type frameSplitter struct {
	buf []byte
}

// push appends a chunk and returns every complete line it closed off
func (s *frameSplitter) push(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			return lines
		}
		line := bytes.TrimSpace(s.buf[:idx])
		s.buf = s.buf[idx+1:]
		if len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
	}
}

// StreamOptionChain opens the chunked option chain stream for an
// underlying and expiration. Events are delivered on the returned channel
// until the context is cancelled or the connection drops; the channel is
// closed with a final Err event on abnormal termination.
//
// Malformed lines are logged and skipped, never fatal.
func (c *Client) StreamOptionChain(ctx context.Context, underlying, expiration string, strikeProximity int) (<-chan StreamEvent, error) {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}
	headers["Accept"] = streamAccept

	req := c.stream.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("expiration", expiration)
	if strikeProximity > 0 {
		req.SetQueryParam("strikeProximity", fmt.Sprintf("%d", strikeProximity))
	}

	resp, err := req.Get("/marketdata/stream/options/chains/" + underlying)
	if err != nil {
		return nil, fmt.Errorf("chain stream connect for %s failed: %w", underlying, err)
	}
	if resp.IsError() {
		body := resp.RawBody()
		if body != nil {
			body.Close()
		}
		return nil, fmt.Errorf("chain stream for %s returned %s", underlying, resp.Status())
	}

	events := make(chan StreamEvent, 256)
	go c.readStream(ctx, underlying, resp.RawBody(), events)
	return events, nil
}

// readStream pumps the chunked body through the frame splitter
func (c *Client) readStream(ctx context.Context, underlying string, body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	splitter := &frameSplitter{}
	chunk := make([]byte, 16*1024)

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			for _, line := range splitter.push(chunk[:n]) {
				event, ok := classifyFrame(line)
				if !ok {
					log.Printf("⚠️  Skipping malformed stream line for %s: %.120s", underlying, line)
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			select {
			case events <- StreamEvent{Err: fmt.Errorf("chain stream read for %s failed: %w", underlying, err)}:
			case <-ctx.Done():
			}
			return
		}
	}
}
