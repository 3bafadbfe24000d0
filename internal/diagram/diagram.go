// Package diagram persists user-saved canvas documents.
package diagram

import (
	"errors"
	"time"
)

// ErrNotFound means the diagram does not exist or belongs to someone else.
var ErrNotFound = errors.New("diagram not found")

// blankCanvas is the document stored when a diagram is pre-created before
// the user has drawn anything.
const blankCanvas = `{"type":"excalidraw","version":2,"source":"https://excalidraw.com","elements":[],"appState":{"gridSize":null,"viewBackgroundColor":"#ffffff"}}`

const defaultTitle = "Untitled"

// Diagram is one saved canvas document. Content is the serialized canvas
// JSON; the server treats it as opaque.
type Diagram struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TopicSaved is published on the event bus whenever a diagram changes.
const TopicSaved = "diagram.saved"

// SavedEvent is the bus payload for TopicSaved.
type SavedEvent struct {
	DiagramID string `json:"diagram_id"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
	Action    string `json:"action"` // created, updated or deleted.
}
