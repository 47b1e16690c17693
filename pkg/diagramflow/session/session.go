// Package session stores canvas sessions: the last graph a client saved,
// kept in memory with a sliding TTL and optionally persisted.
//
// Sessions expire when now - Timestamp > TTL. An expired session seen on
// read is deleted and reported as absent. Serialized sessions are capped
// in size; a save over the cap fails with SessionTooLargeError.
package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// Defaults for NewStore.
const (
	DefaultTTL      = 60 * time.Minute
	DefaultMaxBytes = 5 << 20
	IDPrefix        = "canvas-"
)

// Session is one saved canvas.
type Session struct {
	ID        string       `json:"session_id"`
	Nodes     []model.Node `json:"nodes"`
	Edges     []model.Edge `json:"edges"`
	CreatedAt time.Time    `json:"created_at"`
	Timestamp time.Time    `json:"timestamp"`
	NodeCount int          `json:"node_count"`
	EdgeCount int          `json:"edge_count"`
}

// Graph returns a copy of the session's graph.
func (s *Session) Graph() model.Graph {
	return model.Graph{Nodes: s.Nodes, Edges: s.Edges}.Clone()
}

// Expired reports whether the session is past ttl at now.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.Timestamp) > ttl
}

// SaveResult is returned by Store.Save.
type SaveResult struct {
	SessionID string `json:"session_id"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
	Bytes     int    `json:"-"`
	Created   bool   `json:"-"`
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// NewID returns a fresh session id: IDPrefix plus a short random tag.
func NewID() string {
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")
	return IDPrefix + tag[:8]
}

// ValidateID rejects ids that could escape a storage namespace.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return &dferrors.ConfigError{Field: "session_id", Message: fmt.Sprintf("invalid session id %q", id)}
	}
	return nil
}
