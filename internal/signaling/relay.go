// Package signaling relays WebRTC call setup between connections and keeps
// best-effort bookkeeping of calls in progress.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"codecollab/backend/internal/models"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

var (
	ErrMissingSignal   = errors.New("signal payload is empty")
	ErrMalformedSignal = errors.New("malformed signal payload")
)

// Transport is the subset of the broadcast router the relay needs.
type Transport interface {
	ToConnection(conn, event string, payload any) bool
	ToAllExcept(exclude, event string, payload any)
	IsConnected(conn string) bool
}

// SignalKind names the three relayed frame types.
type SignalKind string

const (
	SignalOffer        SignalKind = models.EventOffer
	SignalAnswer       SignalKind = models.EventAnswer
	SignalICECandidate SignalKind = models.EventICECandidate
)

// Options tunes a Relay.
type Options struct {
	// BroadcastFallback relays untargeted frames to every other connection.
	// When false they are dropped.
	BroadcastFallback bool
	Now               func() time.Time
}

// Relay is the signaling relay.
type Relay struct {
	mu    sync.Mutex
	calls map[string]*models.VideoCallSession

	out       Transport
	broadcast bool
	now       func() time.Time
	logger    *zap.Logger
}

func NewRelay(out Transport, opts Options, logger *zap.Logger) *Relay {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		calls:     make(map[string]*models.VideoCallSession),
		out:       out,
		broadcast: opts.BroadcastFallback,
		now:       opts.Now,
		logger:    logger,
	}
}

// InitiateCall records a pending call and rings the recipient. A caller
// whose recipient is not connected gets call-unavailable instead.
func (r *Relay) InitiateCall(caller, recipient string) {
	if recipient == "" || recipient == caller {
		r.logger.Debug("ignoring call without a valid recipient", zap.String("conn", caller))
		return
	}
	if !r.out.IsConnected(recipient) {
		r.out.ToConnection(caller, models.EventCallUnavailable, models.CallUnavailablePayload{
			RecipientID: recipient,
			Reason:      "recipient is not connected",
		})
		return
	}

	call := &models.VideoCallSession{
		CallID:    models.CallID(caller, recipient),
		Caller:    caller,
		Recipient: recipient,
		Status:    models.CallPending,
		StartedAt: r.now(),
	}
	r.mu.Lock()
	r.calls[call.CallID] = call
	r.mu.Unlock()

	r.logger.Info("call initiated", zap.String("call", call.CallID))
	r.out.ToConnection(recipient, models.EventCallInitiated, models.CallerPayload{CallerID: caller})
}

// AnswerCall marks the call active and notifies the caller. A missing record
// never blocks the notification.
func (r *Relay) AnswerCall(answerer, caller string) {
	if caller == "" {
		return
	}
	r.mu.Lock()
	if call, ok := r.calls[models.CallID(caller, answerer)]; ok {
		call.Status = models.CallActive
	}
	r.mu.Unlock()

	r.out.ToConnection(caller, models.EventCallAnswered, models.AnswererPayload{AnswererID: answerer})
}

// RejectCall drops the call record and tells the caller.
func (r *Relay) RejectCall(rejecter, caller string) {
	if caller == "" {
		return
	}
	r.mu.Lock()
	delete(r.calls, models.CallID(caller, rejecter))
	r.mu.Unlock()

	r.out.ToConnection(caller, models.EventCallRejected, models.RejecterPayload{RecipientID: rejecter})
}

// Relay forwards an offer, answer or ICE candidate. Frames with a target go
// only to that connection; the rest are broadcast when the fallback is on.
func (r *Relay) Relay(kind SignalKind, sender string, payload models.SignalPayload) error {
	if err := validate(kind, payload); err != nil {
		r.logger.Warn("dropping signal",
			zap.String("kind", string(kind)), zap.String("conn", sender), zap.Error(err))
		return err
	}

	out := models.RelayedSignal{
		SenderID:  sender,
		TargetID:  payload.TargetID,
		Offer:     payload.Offer,
		Answer:    payload.Answer,
		Candidate: payload.Candidate,
	}

	if payload.TargetID != "" {
		if !r.out.ToConnection(payload.TargetID, string(kind), out) {
			r.logger.Debug("signal target not connected",
				zap.String("kind", string(kind)), zap.String("target", payload.TargetID))
		}
		return nil
	}
	if r.broadcast {
		r.out.ToAllExcept(sender, string(kind), out)
	}
	return nil
}

func validate(kind SignalKind, p models.SignalPayload) error {
	switch kind {
	case SignalOffer:
		return validateDescription(p.Offer, webrtc.SDPTypeOffer)
	case SignalAnswer:
		return validateDescription(p.Answer, webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer)
	case SignalICECandidate:
		if len(p.Candidate) == 0 {
			return ErrMissingSignal
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &candidate); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrMalformedSignal, kind)
}

func validateDescription(raw json.RawMessage, allowed ...webrtc.SDPType) error {
	if len(raw) == 0 {
		return ErrMissingSignal
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	typeOK := false
	for _, t := range allowed {
		if desc.Type == t {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return fmt.Errorf("%w: unexpected sdp type %q", ErrMalformedSignal, desc.Type.String())
	}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	return nil
}

// EndCall tears down calls involving conn. With a peer, only that call ends
// and only the peer is told; with neither a peer nor a record the end is
// broadcast so legacy clients still hang up.
func (r *Relay) EndCall(conn, peer string) {
	ended := r.removeCalls(conn, peer)
	if len(ended) == 0 {
		if peer != "" {
			r.out.ToConnection(peer, models.EventCallEnded, models.CallerPayload{CallerID: conn})
		} else if r.broadcast {
			r.out.ToAllExcept(conn, models.EventCallEnded, models.CallerPayload{CallerID: conn})
		}
		return
	}
	for _, call := range ended {
		r.out.ToConnection(call.Peer(conn), models.EventCallEnded, models.CallerPayload{CallerID: conn})
	}
}

// Disconnect ends every call the connection took part in.
func (r *Relay) Disconnect(conn string) {
	for _, call := range r.removeCalls(conn, "") {
		r.logger.Info("call ended by disconnect", zap.String("call", call.CallID))
		r.out.ToConnection(call.Peer(conn), models.EventCallEnded, models.CallerPayload{CallerID: conn})
	}
}

func (r *Relay) removeCalls(conn, peer string) []*models.VideoCallSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ended []*models.VideoCallSession
	for id, call := range r.calls {
		if !call.Involves(conn) {
			continue
		}
		if peer != "" && call.Peer(conn) != peer {
			continue
		}
		ended = append(ended, call)
		delete(r.calls, id)
	}
	sort.Slice(ended, func(i, j int) bool { return ended[i].CallID < ended[j].CallID })
	return ended
}

// ActiveCalls returns a snapshot of the call records ordered by id.
func (r *Relay) ActiveCalls() []models.VideoCallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.VideoCallSession, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, *call)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out
}
