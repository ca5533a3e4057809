package bridge

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/util"
)

// Host serves requests read from the extension. Each request runs in its own
// goroutine; responses are written in completion order.
type Host struct {
	handler Handler

	mu sync.Mutex
	w  io.Writer
}

// NewHost creates a host for handler.
func NewHost(handler Handler) *Host {
	return &Host{handler: handler}
}

// Serve reads requests from r until it ends and writes responses to w. It
// waits for in-flight requests before returning. Cancelling ctx makes Serve
// return ctx.Err() even while a read on r is blocked; that read is abandoned
// and its frame, if one arrives, is discarded.
func (h *Host) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	h.mu.Lock()
	h.w = w
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.w = nil
		h.mu.Unlock()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	frames := readFrames(ctx, r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var f frame
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f = <-frames:
		}
		if f.err == io.EOF {
			util.Debug("extension closed the connection")
			return nil
		}
		if f.err != nil {
			return f.err
		}

		req := &Request{}
		if err := json.Unmarshal(f.payload, req); err != nil {
			h.send(&Response{Error: errors.Wrap(err, "invalid request").Error()})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			h.send(h.handler.Handle(ctx, req))
		}()
	}
}

type frame struct {
	payload []byte
	err     error
}

// readFrames reads messages from r until a read fails or ctx is done.
func readFrames(ctx context.Context, r io.Reader) <-chan frame {
	frames := make(chan frame)
	go func() {
		for {
			payload, err := ReadMessage(r)
			select {
			case frames <- frame{payload: payload, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return frames
}

// Notify pushes a notification frame to the extension. It is a no-op when
// the host is not serving.
func (h *Host) Notify(title, message string) {
	_ = h.write(&Notification{Type: "notification", Title: title, Message: message})
}

// send writes resp, replacing it with an error response when it is too large
// to deliver.
func (h *Host) send(resp *Response) {
	err := h.write(resp)
	if errors.Is(err, ErrMessageTooLarge) {
		err = h.write(&Response{ID: resp.ID, Error: err.Error()})
	}
	if err != nil {
		util.Error("failed to send response", "id", resp.ID, "error", err)
	}
}

func (h *Host) write(v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.w == nil {
		return nil
	}
	return WriteMessage(h.w, v)
}
