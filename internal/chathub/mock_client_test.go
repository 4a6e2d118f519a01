package chathub_test

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codecollab/backend/internal/chathub"
)

type MockClient struct {
	id          string
	RecvChannel chan []byte
	runs        atomic.Int32
	closeOnce   sync.Once
}

func newMockClient(id string) *MockClient {
	return newMockClientSized(id, 32)
}

func newMockClientSized(id string, buffer int) *MockClient {
	return &MockClient{id: id, RecvChannel: make(chan []byte, buffer)}
}

func (c *MockClient) GetConnectionID() string       { return c.id }
func (c *MockClient) GetSendChannel() chan<- []byte { return c.RecvChannel }
func (c *MockClient) Run()                          { c.runs.Add(1) }
func (c *MockClient) Close()                        { c.closeOnce.Do(func() { close(c.RecvChannel) }) }

var _ chathub.Client = (*MockClient)(nil)

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// next waits for the next frame on c.
func next(t *testing.T, c *MockClient) received {
	t.Helper()
	select {
	case frame, ok := <-c.RecvChannel:
		if !ok {
			t.Fatalf("%s: channel closed", c.id)
		}
		var r received
		if err := json.Unmarshal(frame, &r); err != nil {
			t.Fatalf("%s: bad frame %q: %v", c.id, frame, err)
		}
		return r
	case <-time.After(time.Second):
		t.Fatalf("%s: no frame received", c.id)
	}
	return received{}
}

// drain returns every frame already queued on c.
func drain(t *testing.T, c *MockClient) []received {
	t.Helper()
	var out []received
	for {
		select {
		case frame, ok := <-c.RecvChannel:
			if !ok {
				return out
			}
			var r received
			if err := json.Unmarshal(frame, &r); err != nil {
				t.Fatalf("%s: bad frame %q: %v", c.id, frame, err)
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

func events(frames []received) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}
