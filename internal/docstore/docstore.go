package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("document not found")

// Store is a keyed document store over nested collections. Collections are
// addressed by slash-separated paths ("sessions", "sessions/Networks 731/scans").
// Set is a full overwrite of whatever document held the key before.
type Store interface {
	// Get unmarshals the document at (collection, key) into dest.
	Get(ctx context.Context, collection, key string, dest any) error
	// Set marshals doc and writes it under (collection, key), replacing any
	// prior document.
	Set(ctx context.Context, collection, key string, doc any) error
	// List returns every document in the collection, keyed by document key.
	List(ctx context.Context, collection string) (map[string]json.RawMessage, error)
	// Delete removes the document at (collection, key). Deleting a missing
	// key is not an error.
	Delete(ctx context.Context, collection, key string) error
	// Watch delivers the full latest contents of the collection after every
	// change to it. The returned cancel func stops delivery and releases the
	// subscription. Watch is a read-side capability for live views; core
	// validation paths use point-in-time Get/List instead.
	Watch(ctx context.Context, collection string) (<-chan map[string]json.RawMessage, func(), error)
}
