package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/configdesk/configdesk/pkg/config"
	"github.com/configdesk/configdesk/pkg/schema"
)

// ErrNotFound is returned when a requested revision does not exist.
var ErrNotFound = errors.New("stores: not found")

// Snapshot is one persisted version of a configuration document. Only the
// serialized text is stored; the structured form is re-derived on load.
type Snapshot struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists configuration documents.
type Store interface {
	// Load returns the current document, creating the default one if the
	// store is empty.
	Load(ctx context.Context) (*Snapshot, error)

	// Save persists snap as the current document. It fills in the ID,
	// checksum and creation time when they are unset.
	Save(ctx context.Context, snap *Snapshot) error

	// Name identifies the backend in logs and metrics.
	Name() string

	Close() error
}

// RevisionStore is a Store that keeps every saved version.
type RevisionStore interface {
	Store
	ListRevisions(ctx context.Context, limit, offset int) ([]*Snapshot, error)
	GetRevision(ctx context.Context, id string) (*Snapshot, error)
	PruneRevisions(ctx context.Context, keep int) (int64, error)
}

// Checksum returns the hex SHA-256 of text.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DefaultText returns the serialized default configuration.
func DefaultText() string {
	cfg := config.DefaultConfig()
	text, err := config.Serialize(&cfg, schema.Default())
	if err != nil {
		panic("stores: default config does not serialize: " + err.Error())
	}
	return text
}
