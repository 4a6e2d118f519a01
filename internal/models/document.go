package models

import "time"

// RoomKind distinguishes the two kinds of collaborative rooms.
type RoomKind string

const (
	RoomPair  RoomKind = "pair"
	RoomGroup RoomKind = "group"
)

// Document is the shared code buffer owned by exactly one room.
type Document struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// Member is a connection that joined a study group.
type Member struct {
	ConnectionID string `json:"id"`
	DisplayName  string `json:"username"`
}

// LogEntry is an append-only chat message or question.
type LogEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessage and Question share a shape but live in separate logs.
type (
	ChatMessage = LogEntry
	Question    = LogEntry
)

// GroupState is what a connection receives when it joins a study group.
type GroupState struct {
	Code      string        `json:"code"`
	Language  Language      `json:"language"`
	Messages  []ChatMessage `json:"messages"`
	Questions []Question    `json:"questions"`
	Users     []Member      `json:"users"`
	GroupName string        `json:"groupName"`
}

// GroupSummary is a directory entry visible to every client.
type GroupSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserCount int       `json:"userCount"`
	CreatedAt time.Time `json:"createdAt"`
}
