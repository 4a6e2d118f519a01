package signaling_test

import (
	"encoding/json"
	"sync"
	"testing"

	"codecollab/backend/internal/models"
	"codecollab/backend/internal/signaling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validOffer  = `{"type":"offer","sdp":"v=0\r\no=- 4215775240449105457 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`
	validAnswer = `{"type":"answer","sdp":"v=0\r\no=- 4215775240449105458 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`
	validICE    = `{"candidate":"candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`
)

type delivery struct {
	to      string
	event   string
	payload any
}

type fakeTransport struct {
	mu        sync.Mutex
	connected map[string]bool
	sent      []delivery
}

func newTransport(conns ...string) *fakeTransport {
	t := &fakeTransport{connected: make(map[string]bool)}
	for _, c := range conns {
		t.connected[c] = true
	}
	return t
}

func (t *fakeTransport) ToConnection(conn, event string, payload any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected[conn] {
		return false
	}
	t.sent = append(t.sent, delivery{conn, event, payload})
	return true
}

func (t *fakeTransport) ToAllExcept(exclude, event string, payload any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for conn := range t.connected {
		if conn != exclude {
			t.sent = append(t.sent, delivery{conn, event, payload})
		}
	}
}

func (t *fakeTransport) IsConnected(conn string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected[conn]
}

func (t *fakeTransport) to(conn string) []delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []delivery
	for _, d := range t.sent {
		if d.to == conn {
			out = append(out, d)
		}
	}
	return out
}

func newRelay(tr *fakeTransport, broadcast bool) *signaling.Relay {
	return signaling.NewRelay(tr, signaling.Options{BroadcastFallback: broadcast}, nil)
}

func TestInitiateCall(t *testing.T) {
	tr := newTransport("alice", "bob")
	relay := newRelay(tr, true)

	relay.InitiateCall("alice", "bob")

	got := tr.to("bob")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventCallInitiated, got[0].event)
	assert.Equal(t, models.CallerPayload{CallerID: "alice"}, got[0].payload)

	calls := relay.ActiveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "alice:bob", calls[0].CallID)
	assert.Equal(t, models.CallPending, calls[0].Status)
}

func TestInitiateCall_RecipientOffline(t *testing.T) {
	tr := newTransport("alice")
	relay := newRelay(tr, true)

	relay.InitiateCall("alice", "ghost")

	got := tr.to("alice")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventCallUnavailable, got[0].event)
	assert.Empty(t, relay.ActiveCalls())
}

func TestInitiateCall_IgnoresSelfAndEmpty(t *testing.T) {
	tr := newTransport("alice")
	relay := newRelay(tr, true)
	relay.InitiateCall("alice", "alice")
	relay.InitiateCall("alice", "")
	assert.Empty(t, tr.to("alice"))
	assert.Empty(t, relay.ActiveCalls())
}

func TestAnswerCall(t *testing.T) {
	tr := newTransport("alice", "bob")
	relay := newRelay(tr, true)
	relay.InitiateCall("alice", "bob")

	relay.AnswerCall("bob", "alice")

	got := tr.to("alice")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventCallAnswered, got[0].event)
	assert.Equal(t, models.AnswererPayload{AnswererID: "bob"}, got[0].payload)
	assert.Equal(t, models.CallActive, relay.ActiveCalls()[0].Status)
}

func TestAnswerCall_WithoutRecordStillNotifies(t *testing.T) {
	tr := newTransport("alice", "bob")
	relay := newRelay(tr, true)
	relay.AnswerCall("bob", "alice")
	assert.Len(t, tr.to("alice"), 1)
}

func TestRejectCall(t *testing.T) {
	tr := newTransport("alice", "bob")
	relay := newRelay(tr, true)
	relay.InitiateCall("alice", "bob")

	relay.RejectCall("bob", "alice")

	got := tr.to("alice")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventCallRejected, got[0].event)
	assert.Equal(t, models.RejecterPayload{RecipientID: "bob"}, got[0].payload)
	assert.Empty(t, relay.ActiveCalls())
}

func TestRelay_TargetedDeliveryOnly(t *testing.T) {
	tr := newTransport("alice", "bob", "carol")
	relay := newRelay(tr, true)

	err := relay.Relay(signaling.SignalOffer, "alice", models.SignalPayload{
		TargetID: "bob",
		Offer:    json.RawMessage(validOffer),
	})
	require.NoError(t, err)

	got := tr.to("bob")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventOffer, got[0].event)
	signal := got[0].payload.(models.RelayedSignal)
	assert.Equal(t, "alice", signal.SenderID)
	assert.JSONEq(t, validOffer, string(signal.Offer))
	assert.Empty(t, tr.to("carol"))
	assert.Empty(t, tr.to("alice"))
}

func TestRelay_BroadcastFallback(t *testing.T) {
	tr := newTransport("alice", "bob", "carol")
	relay := newRelay(tr, true)

	require.NoError(t, relay.Relay(signaling.SignalAnswer, "bob", models.SignalPayload{
		Answer: json.RawMessage(validAnswer),
	}))

	assert.Len(t, tr.to("alice"), 1)
	assert.Len(t, tr.to("carol"), 1)
	assert.Empty(t, tr.to("bob"))
}

func TestRelay_NoBroadcastWhenDisabled(t *testing.T) {
	tr := newTransport("alice", "bob")
	relay := newRelay(tr, false)

	require.NoError(t, relay.Relay(signaling.SignalICECandidate, "alice", models.SignalPayload{
		Candidate: json.RawMessage(validICE),
	}))
	assert.Empty(t, tr.to("bob"))
}

func TestRelay_RejectsMalformedPayloads(t *testing.T) {
	tr := newTransport("alice", "bob")
	relay := newRelay(tr, true)

	cases := []struct {
		name    string
		kind    signaling.SignalKind
		payload models.SignalPayload
		want    error
	}{
		{"missing offer", signaling.SignalOffer, models.SignalPayload{TargetID: "bob"}, signaling.ErrMissingSignal},
		{"offer not json", signaling.SignalOffer, models.SignalPayload{TargetID: "bob", Offer: json.RawMessage(`"{"`)}, signaling.ErrMalformedSignal},
		{"answer in offer slot", signaling.SignalOffer, models.SignalPayload{TargetID: "bob", Offer: json.RawMessage(validAnswer)}, signaling.ErrMalformedSignal},
		{"garbage sdp", signaling.SignalAnswer, models.SignalPayload{TargetID: "bob", Answer: json.RawMessage(`{"type":"answer","sdp":"not an sdp"}`)}, signaling.ErrMalformedSignal},
		{"candidate wrong shape", signaling.SignalICECandidate, models.SignalPayload{TargetID: "bob", Candidate: json.RawMessage(`[1,2]`)}, signaling.ErrMalformedSignal},
		{"missing candidate", signaling.SignalICECandidate, models.SignalPayload{TargetID: "bob"}, signaling.ErrMissingSignal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := relay.Relay(tc.kind, "alice", tc.payload)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, tr.to("bob"))
}

func TestEndCall_NotifiesPeer(t *testing.T) {
	tr := newTransport("alice", "bob", "carol")
	relay := newRelay(tr, true)
	relay.InitiateCall("alice", "bob")

	relay.EndCall("bob", "")

	got := tr.to("alice")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventCallEnded, got[0].event)
	assert.Equal(t, models.CallerPayload{CallerID: "bob"}, got[0].payload)
	assert.Empty(t, tr.to("carol"))
	assert.Empty(t, relay.ActiveCalls())
}

func TestEndCall_WithoutRecord(t *testing.T) {
	tr := newTransport("alice", "bob", "carol")
	relay := newRelay(tr, true)

	relay.EndCall("alice", "bob")
	assert.Len(t, tr.to("bob"), 1)
	assert.Empty(t, tr.to("carol"))

	relay.EndCall("alice", "")
	assert.Len(t, tr.to("bob"), 2)
	assert.Len(t, tr.to("carol"), 1)
}

func TestDisconnect_EndsEveryCall(t *testing.T) {
	tr := newTransport("alice", "bob", "carol")
	relay := newRelay(tr, true)
	relay.InitiateCall("alice", "bob")
	relay.InitiateCall("carol", "alice")

	relay.Disconnect("alice")

	assert.Empty(t, relay.ActiveCalls())
	for _, peer := range []string{"bob", "carol"} {
		got := tr.to(peer)
		require.NotEmpty(t, got)
		assert.Equal(t, models.EventCallEnded, got[len(got)-1].event)
	}
}
