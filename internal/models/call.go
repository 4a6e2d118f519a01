package models

import "time"

// CallStatus tracks a video call through setup.
type CallStatus string

const (
	CallPending CallStatus = "pending"
	CallActive  CallStatus = "active"
)

// VideoCallSession is best-effort bookkeeping for a WebRTC call.
type VideoCallSession struct {
	CallID    string     `json:"callId"`
	Caller    string     `json:"callerId"`
	Recipient string     `json:"recipientId"`
	Status    CallStatus `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
}

// CallID derives the call identifier from its two endpoints.
func CallID(caller, recipient string) string {
	return caller + ":" + recipient
}

// Involves reports whether conn is either side of the call.
func (c *VideoCallSession) Involves(conn string) bool {
	return c.Caller == conn || c.Recipient == conn
}

// Peer returns the other side of the call relative to conn.
func (c *VideoCallSession) Peer(conn string) string {
	if c.Caller == conn {
		return c.Recipient
	}
	return c.Caller
}
