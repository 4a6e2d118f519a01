package models

import "encoding/json"

// Envelope is a single real-time frame on the WebSocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound frames carry an already-encodable payload instead of raw JSON.
type OutboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventJoinPairSession = "join-pair-session"
	EventCodeChange      = "code-change"
	EventJoinStudyGroup  = "join-study-group"
	EventGroupCodeChange = "group-code-change"
	EventSendMessage     = "send-message"
	EventAddQuestion     = "add-question"
	EventInitiateCall    = "initiate-call"
	EventCallAnswered    = "call-answered"
	EventRejectCall      = "reject-call"
	EventCallRejected    = "call-rejected"
	EventOffer           = "offer"
	EventAnswer          = "answer"
	EventICECandidate    = "ice-candidate"
	EventEndCall         = "end-call"
)

// Outbound event names.
const (
	EventSessionState    = "session-state"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventCodeUpdate      = "code-update"
	EventGroupState      = "group-state"
	EventUserJoinedGroup = "user-joined-group"
	EventUserLeftGroup   = "user-left-group"
	EventGroupCodeUpdate = "group-code-update"
	EventNewMessage      = "new-message"
	EventNewQuestion     = "new-question"
	EventGroupCreated    = "group-created"
	EventGroupUpdated    = "group-updated"
	EventGroupRemoved    = "group-removed"
	EventCallInitiated   = "call-initiated"
	EventCallUnavailable = "call-unavailable"
	EventCallEnded       = "call-ended"
	EventError           = "error"
	EventConnected       = "connected"
)

// Inbound payloads.

type JoinPairSessionPayload struct {
	SessionID string `json:"sessionId"`
}

type CodeChangePayload struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Language  string `json:"language"`
}

type JoinStudyGroupPayload struct {
	GroupID string `json:"groupId"`
}

type GroupCodeChangePayload struct {
	GroupID  string `json:"groupId"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

type GroupLogPayload struct {
	GroupID  string `json:"groupId"`
	Message  string `json:"message"`
	Question string `json:"question"`
	Username string `json:"username"`
}

type InitiateCallPayload struct {
	RecipientID string `json:"recipientId"`
}

type CallerPayload struct {
	CallerID string `json:"callerId"`
}

type EndCallPayload struct {
	PeerID string `json:"peerId"`
}

// SignalPayload wraps offer/answer/ice-candidate frames. TargetID is optional;
// without it the frame is relayed to everyone.
type SignalPayload struct {
	TargetID  string          `json:"targetId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Outbound payloads.

type ConnectedPayload struct {
	ConnectionID string `json:"id"`
}

type UserPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type GroupRemovedPayload struct {
	GroupID string `json:"groupId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type AnswererPayload struct {
	AnswererID string `json:"answererId"`
}

type RejecterPayload struct {
	RecipientID string `json:"recipientId"`
}

type CallUnavailablePayload struct {
	RecipientID string `json:"recipientId"`
	Reason      string `json:"reason"`
}

// RelayedSignal is an offer/answer/ice-candidate frame as delivered, with the
// sender identified.
type RelayedSignal struct {
	SenderID  string          `json:"senderId"`
	TargetID  string          `json:"targetId,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}
