// Package presence keeps the in-memory pair sessions and study groups:
// their shared documents, membership and chat/question logs.
//
// Each room has its own mutex; the registry maps have another. A room lock
// may be held while taking the registry lock or calling the Broadcaster,
// never the other way round. Every room event is emitted while the room
// lock is held, which gives per-room delivery order.
package presence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"codecollab/backend/internal/config"
	"codecollab/backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidRoomID is returned when a join names no room.
var ErrInvalidRoomID = errors.New("room id is required")

// Broadcaster delivers events to connections. It must not call back into
// the Registry.
type Broadcaster interface {
	Subscribe(room, conn string)
	Unsubscribe(room, conn string)
	ToRoom(room, event string, payload any, exclude string)
	ToAll(event string, payload any)
	ToConnection(conn, event string, payload any) bool
}

// PairRoom and GroupRoom build broadcast room keys; the two id spaces are
// independent.
func PairRoom(id string) string  { return string(models.RoomPair) + ":" + id }
func GroupRoom(id string) string { return string(models.RoomGroup) + ":" + id }

type roomRef struct {
	kind models.RoomKind
	id   string
}

type pairSession struct {
	mu         sync.Mutex
	id         string
	doc        models.Document
	members    map[string]struct{}
	emptySince time.Time
	closed     bool
}

type studyGroup struct {
	mu          sync.Mutex
	entry       *directoryEntry
	doc         models.Document
	members     []models.Member
	messages    []models.ChatMessage
	questions   []models.Question
	nextOrdinal int
	closed      bool
}

type directoryEntry struct {
	id        string
	name      string
	createdAt time.Time
}

// Options tunes a Registry.
type Options struct {
	// PairIdleTTL is how long an empty pair session keeps its document.
	PairIdleTTL time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Registry is the process-wide owner of every room.
type Registry struct {
	mu          sync.RWMutex
	pairs       map[string]*pairSession
	groups      map[string]*studyGroup
	directory   map[string]*directoryEntry
	memberships map[string]map[roomRef]struct{}

	out     Broadcaster
	idleTTL time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewRegistry creates an empty registry that publishes through out.
func NewRegistry(out Broadcaster, opts Options, logger *zap.Logger) *Registry {
	if opts.PairIdleTTL <= 0 {
		opts.PairIdleTTL = config.DefaultPairSessionIdleTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		pairs:       make(map[string]*pairSession),
		groups:      make(map[string]*studyGroup),
		directory:   make(map[string]*directoryEntry),
		memberships: make(map[string]map[roomRef]struct{}),
		out:         out,
		idleTTL:     opts.PairIdleTTL,
		now:         opts.Now,
		logger:      logger,
	}
}

func (r *Registry) track(conn string, ref roomRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.memberships[conn]
	if !ok {
		rooms = make(map[roomRef]struct{})
		r.memberships[conn] = rooms
	}
	rooms[ref] = struct{}{}
}

// JoinPairSession attaches conn to the pair session id, creating it with
// the welcome document on first join, and returns the current document.
func (r *Registry) JoinPairSession(id, conn string) (models.Document, error) {
	if id == "" {
		return models.Document{}, ErrInvalidRoomID
	}
	room := PairRoom(id)

	for {
		r.mu.Lock()
		ps, ok := r.pairs[id]
		if !ok {
			ps = &pairSession{
				id:         id,
				doc:        models.Document{Code: config.PairWelcomeCode, Language: config.DefaultDocumentLanguage},
				members:    make(map[string]struct{}),
				emptySince: r.now(),
			}
			r.pairs[id] = ps
			r.logger.Info("pair session created", zap.String("session", id))
		}
		r.mu.Unlock()

		ps.mu.Lock()
		if ps.closed {
			// Evicted between lookup and lock; retry against a fresh session.
			ps.mu.Unlock()
			continue
		}

		_, already := ps.members[conn]
		ps.members[conn] = struct{}{}
		ps.emptySince = time.Time{}
		r.track(conn, roomRef{kind: models.RoomPair, id: id})
		r.out.Subscribe(room, conn)

		doc := ps.doc
		r.out.ToConnection(conn, models.EventSessionState, doc)
		if !already {
			r.out.ToRoom(room, models.EventUserJoined, models.UserPayload{UserID: conn}, conn)
		}
		ps.mu.Unlock()
		return doc, nil
	}
}

// JoinStudyGroup attaches conn to the study group id. Unknown ids are looked
// up in the directory first, then created ad hoc with a generated name.
func (r *Registry) JoinStudyGroup(id, conn string) (models.GroupState, error) {
	if id == "" {
		return models.GroupState{}, ErrInvalidRoomID
	}
	room := GroupRoom(id)

	for {
		r.mu.Lock()
		g, ok := r.groups[id]
		if !ok {
			entry, listed := r.directory[id]
			if !listed {
				entry = &directoryEntry{id: id, name: generatedGroupName(id), createdAt: r.now()}
				r.directory[id] = entry
			}
			g = &studyGroup{
				entry: entry,
				doc:   models.Document{Code: config.GroupWelcomeCode, Language: config.DefaultDocumentLanguage},
			}
			r.groups[id] = g
			r.logger.Info("study group opened", zap.String("group", id), zap.Bool("listed", listed))
		}
		r.mu.Unlock()

		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			continue
		}

		member, already := g.member(conn)
		if !already {
			g.nextOrdinal++
			member = models.Member{
				ConnectionID: conn,
				DisplayName:  fmt.Sprintf("%s%d", config.DisplayNamePrefix, g.nextOrdinal),
			}
			g.members = append(g.members, member)
		}
		r.track(conn, roomRef{kind: models.RoomGroup, id: id})
		r.out.Subscribe(room, conn)

		state := g.state()
		r.out.ToConnection(conn, models.EventGroupState, state)
		if !already {
			r.out.ToRoom(room, models.EventUserJoinedGroup,
				models.UserPayload{UserID: conn, Username: member.DisplayName}, conn)
			r.out.ToAll(models.EventGroupUpdated, g.summary())
		}
		g.mu.Unlock()
		return state, nil
	}
}

// UpdateDocument overwrites a room's document (last write wins). An empty or
// unknown language keeps the current one. Unknown rooms and non-members are
// ignored; the result reports whether the write happened.
func (r *Registry) UpdateDocument(kind models.RoomKind, id, conn, code, language string) bool {
	switch kind {
	case models.RoomPair:
		r.mu.RLock()
		ps := r.pairs[id]
		r.mu.RUnlock()
		if ps == nil {
			return false
		}

		ps.mu.Lock()
		defer ps.mu.Unlock()
		if _, ok := ps.members[conn]; !ok || ps.closed {
			return false
		}
		applyEdit(&ps.doc, code, language)
		r.out.ToRoom(PairRoom(id), models.EventCodeUpdate, ps.doc, conn)
		return true

	case models.RoomGroup:
		r.mu.RLock()
		g := r.groups[id]
		r.mu.RUnlock()
		if g == nil {
			return false
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		if _, ok := g.member(conn); !ok || g.closed {
			return false
		}
		applyEdit(&g.doc, code, language)
		r.out.ToRoom(GroupRoom(id), models.EventGroupCodeUpdate, g.doc, conn)
		return true
	}
	return false
}

func applyEdit(doc *models.Document, code, language string) {
	doc.Code = code
	if lang, ok := models.ParseLanguage(language); ok {
		doc.Language = lang
	}
}

// AddMessage appends a chat message and delivers it to every member,
// sender included.
func (r *Registry) AddMessage(groupID, conn, text, username string) (models.ChatMessage, bool) {
	return r.appendLog(groupID, conn, text, username, models.EventNewMessage)
}

// AddQuestion appends a question and delivers it to every member, sender
// included.
func (r *Registry) AddQuestion(groupID, conn, text, username string) (models.Question, bool) {
	return r.appendLog(groupID, conn, text, username, models.EventNewQuestion)
}

func (r *Registry) appendLog(groupID, conn, text, username, event string) (models.LogEntry, bool) {
	if strings.TrimSpace(text) == "" {
		return models.LogEntry{}, false
	}

	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g == nil {
		return models.LogEntry{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	member, ok := g.member(conn)
	if !ok || g.closed {
		return models.LogEntry{}, false
	}
	if username == "" {
		username = member.DisplayName
	}

	entry := models.LogEntry{
		ID:        uuid.NewString(),
		Text:      text,
		Author:    username,
		Timestamp: r.now(),
	}
	if event == models.EventNewQuestion {
		g.questions = append(g.questions, entry)
	} else {
		g.messages = append(g.messages, entry)
	}
	r.out.ToRoom(GroupRoom(groupID), event, entry, "")
	return entry, true
}

// Leave removes conn from every room it joined. Study groups that become
// empty are removed from the live registry and the directory. Calling Leave
// for unknown or already departed connections is a no-op.
func (r *Registry) Leave(conn string) {
	r.mu.Lock()
	rooms := r.memberships[conn]
	delete(r.memberships, conn)
	r.mu.Unlock()

	for ref := range rooms {
		switch ref.kind {
		case models.RoomPair:
			r.leavePair(ref.id, conn)
		case models.RoomGroup:
			r.leaveGroup(ref.id, conn)
		}
	}
}

func (r *Registry) leavePair(id, conn string) {
	r.mu.RLock()
	ps := r.pairs[id]
	r.mu.RUnlock()
	if ps == nil {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.members[conn]; !ok {
		return
	}
	delete(ps.members, conn)
	room := PairRoom(id)
	r.out.Unsubscribe(room, conn)
	r.out.ToRoom(room, models.EventUserLeft, models.UserPayload{UserID: conn}, conn)
	if len(ps.members) == 0 {
		ps.emptySince = r.now()
	}
}

func (r *Registry) leaveGroup(id, conn string) {
	r.mu.RLock()
	g := r.groups[id]
	r.mu.RUnlock()
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	member, ok := g.member(conn)
	if !ok {
		return
	}
	g.removeMember(conn)

	room := GroupRoom(id)
	r.out.Unsubscribe(room, conn)
	r.out.ToRoom(room, models.EventUserLeftGroup,
		models.UserPayload{UserID: conn, Username: member.DisplayName}, conn)

	if len(g.members) > 0 {
		r.out.ToAll(models.EventGroupUpdated, g.summary())
		return
	}

	g.closed = true
	r.mu.Lock()
	if r.groups[id] == g {
		delete(r.groups, id)
	}
	if r.directory[id] == g.entry {
		delete(r.directory, id)
	}
	r.mu.Unlock()

	r.logger.Info("study group removed", zap.String("group", id))
	r.out.ToAll(models.EventGroupRemoved, models.GroupRemovedPayload{GroupID: id})
}

// CreateStudyGroup lists a new, empty group in the directory.
func (r *Registry) CreateStudyGroup(name string) models.GroupSummary {
	id := uuid.NewString()
	name = strings.TrimSpace(name)
	if name == "" {
		name = generatedGroupName(id)
	}
	entry := &directoryEntry{id: id, name: name, createdAt: r.now()}

	r.mu.Lock()
	r.directory[id] = entry
	r.mu.Unlock()

	summary := models.GroupSummary{ID: id, Name: name, CreatedAt: entry.createdAt}
	r.logger.Info("study group created", zap.String("group", id), zap.String("name", name))
	r.out.ToAll(models.EventGroupCreated, summary)
	return summary
}

// ListStudyGroups returns the directory ordered by creation time.
func (r *Registry) ListStudyGroups() []models.GroupSummary {
	type listed struct {
		entry *directoryEntry
		live  *studyGroup
	}

	r.mu.RLock()
	items := make([]listed, 0, len(r.directory))
	for id, entry := range r.directory {
		items = append(items, listed{entry: entry, live: r.groups[id]})
	}
	r.mu.RUnlock()

	out := make([]models.GroupSummary, 0, len(items))
	for _, it := range items {
		summary := models.GroupSummary{ID: it.entry.id, Name: it.entry.name, CreatedAt: it.entry.createdAt}
		if it.live != nil {
			it.live.mu.Lock()
			closed := it.live.closed
			summary.UserCount = len(it.live.members)
			it.live.mu.Unlock()
			if closed {
				continue
			}
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PairDocument returns the current document of a pair session.
func (r *Registry) PairDocument(id string) (models.Document, bool) {
	r.mu.RLock()
	ps := r.pairs[id]
	r.mu.RUnlock()
	if ps == nil {
		return models.Document{}, false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.doc, !ps.closed
}

// GroupDocument returns the current document of a live study group.
func (r *Registry) GroupDocument(id string) (models.Document, bool) {
	state, ok := r.GroupState(id)
	if !ok {
		return models.Document{}, false
	}
	return models.Document{Code: state.Code, Language: state.Language}, true
}

// GroupState returns a snapshot of a live study group.
func (r *Registry) GroupState(id string) (models.GroupState, bool) {
	r.mu.RLock()
	g := r.groups[id]
	r.mu.RUnlock()
	if g == nil {
		return models.GroupState{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state(), !g.closed
}

// SweepIdlePairSessions evicts pair sessions that have had no members for
// longer than the idle TTL and returns how many were removed.
func (r *Registry) SweepIdlePairSessions() int {
	r.mu.RLock()
	sessions := make([]*pairSession, 0, len(r.pairs))
	for _, ps := range r.pairs {
		sessions = append(sessions, ps)
	}
	r.mu.RUnlock()

	now := r.now()
	evicted := 0
	for _, ps := range sessions {
		ps.mu.Lock()
		if !ps.closed && len(ps.members) == 0 && now.Sub(ps.emptySince) >= r.idleTTL {
			ps.closed = true
			r.mu.Lock()
			if r.pairs[ps.id] == ps {
				delete(r.pairs, ps.id)
			}
			r.mu.Unlock()
			evicted++
		}
		ps.mu.Unlock()
	}
	if evicted > 0 {
		r.logger.Info("idle pair sessions evicted", zap.Int("count", evicted))
	}
	return evicted
}

func (g *studyGroup) member(conn string) (models.Member, bool) {
	for _, m := range g.members {
		if m.ConnectionID == conn {
			return m, true
		}
	}
	return models.Member{}, false
}

func (g *studyGroup) removeMember(conn string) {
	for i, m := range g.members {
		if m.ConnectionID == conn {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return
		}
	}
}

// state copies the group so callers never share slices with the room.
func (g *studyGroup) state() models.GroupState {
	return models.GroupState{
		Code:      g.doc.Code,
		Language:  g.doc.Language,
		Messages:  append([]models.ChatMessage{}, g.messages...),
		Questions: append([]models.Question{}, g.questions...),
		Users:     append([]models.Member{}, g.members...),
		GroupName: g.entry.name,
	}
}

func (g *studyGroup) summary() models.GroupSummary {
	return models.GroupSummary{
		ID:        g.entry.id,
		Name:      g.entry.name,
		UserCount: len(g.members),
		CreatedAt: g.entry.createdAt,
	}
}

func generatedGroupName(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return config.GeneratedGroupNamePrefix + short
}
