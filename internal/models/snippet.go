package models

import (
	"fmt"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"gorm.io/gorm"
)

// snippetIDLength matches config.SnippetIDLength; duplicated to keep models
// free of a config import.
const snippetIDLength = 21

var newSnippetID func() string

func init() {
	gen, err := nanoid.Standard(snippetIDLength)
	if err != nil {
		panic(fmt.Sprintf("models: nanoid generator: %v", err))
	}
	newSnippetID = gen
}

// SharedSnippet is an immutable piece of code published via the share action.
type SharedSnippet struct {
	// ID is an unguessable nanoid, assigned on create.
	ID        string    `gorm:"primaryKey;size:32" json:"id"`
	Code      string    `gorm:"type:text;not null" json:"code"`
	Language  string    `gorm:"type:text;not null" json:"language"`
	Title     string    `gorm:"type:text" json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// BeforeCreate is a GORM hook that assigns a fresh ID when none is set.
func (s *SharedSnippet) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = newSnippetID()
	}
	return
}
