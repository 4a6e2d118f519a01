package chathub

import (
	"encoding/json"

	"codecollab/backend/internal/models"
	"codecollab/backend/internal/signaling"

	"go.uber.org/zap"
)

// Dispatch applies one inbound frame from conn. Frames naming unknown rooms
// are ignored by the registry; frames that cannot be decoded earn the
// sender an error event.
func (m *ManagerService) Dispatch(conn string, env models.Envelope) {
	switch env.Event {
	case models.EventJoinPairSession:
		var p models.JoinPairSessionPayload
		if m.decode(conn, env, &p) {
			if _, err := m.Presence.JoinPairSession(p.SessionID, conn); err != nil {
				m.reject(conn, env.Event, err.Error())
			}
		}

	case models.EventCodeChange:
		var p models.CodeChangePayload
		if m.decode(conn, env, &p) {
			m.Presence.UpdateDocument(models.RoomPair, p.SessionID, conn, p.Code, p.Language)
		}

	case models.EventJoinStudyGroup:
		var p models.JoinStudyGroupPayload
		if m.decode(conn, env, &p) {
			if _, err := m.Presence.JoinStudyGroup(p.GroupID, conn); err != nil {
				m.reject(conn, env.Event, err.Error())
			}
		}

	case models.EventGroupCodeChange:
		var p models.GroupCodeChangePayload
		if m.decode(conn, env, &p) {
			m.Presence.UpdateDocument(models.RoomGroup, p.GroupID, conn, p.Code, p.Language)
		}

	case models.EventSendMessage:
		var p models.GroupLogPayload
		if m.decode(conn, env, &p) {
			m.Presence.AddMessage(p.GroupID, conn, p.Message, p.Username)
		}

	case models.EventAddQuestion:
		var p models.GroupLogPayload
		if m.decode(conn, env, &p) {
			m.Presence.AddQuestion(p.GroupID, conn, p.Question, p.Username)
		}

	case models.EventInitiateCall:
		var p models.InitiateCallPayload
		if m.decode(conn, env, &p) {
			m.Signaling.InitiateCall(conn, p.RecipientID)
		}

	case models.EventCallAnswered:
		var p models.CallerPayload
		if m.decode(conn, env, &p) {
			m.Signaling.AnswerCall(conn, p.CallerID)
		}

	case models.EventRejectCall, models.EventCallRejected:
		var p models.CallerPayload
		if m.decode(conn, env, &p) {
			m.Signaling.RejectCall(conn, p.CallerID)
		}

	case models.EventOffer, models.EventAnswer, models.EventICECandidate:
		var p models.SignalPayload
		if m.decode(conn, env, &p) {
			if err := m.Signaling.Relay(signaling.SignalKind(env.Event), conn, p); err != nil {
				m.reject(conn, env.Event, err.Error())
			}
		}

	case models.EventEndCall:
		var p models.EndCallPayload
		if len(env.Data) == 0 || m.decode(conn, env, &p) {
			m.Signaling.EndCall(conn, p.PeerID)
		}

	default:
		m.reject(conn, env.Event, "unknown event")
	}
}

func (m *ManagerService) decode(conn string, env models.Envelope, dst any) bool {
	if len(env.Data) == 0 {
		m.reject(conn, env.Event, "missing data")
		return false
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		m.reject(conn, env.Event, "invalid data")
		return false
	}
	return true
}

func (m *ManagerService) reject(conn, event, reason string) {
	m.logger.Debug("rejected frame",
		zap.String("conn", conn), zap.String("event", event), zap.String("reason", reason))
	m.Router.ToConnection(conn, models.EventError, models.ErrorPayload{Message: event + ": " + reason})
}
