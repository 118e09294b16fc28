/*
store.go - Persistence interface for scenario collections

PURPOSE:
  The engine itself never reads or writes files. Outer layers hand it a
  collection and persist what it returns through a CollectionStore.

IMPLEMENTATIONS:
  - store/file:      JSON document with timestamped backups
  - store/sqlite:    SQLite tables with backups and merge run history
  - scenario/store:  In-memory implementation for testing

SEE ALSO:
  - merge.go: Produces the collections that get saved
*/
package scenario

import "context"

// CollectionStore loads and saves a whole canonical collection.
type CollectionStore interface {
	// Load returns the stored collection. Returns ErrCollectionNotFound
	// when nothing has been saved yet.
	Load(ctx context.Context) (Collection, error)

	// Save replaces the stored collection.
	Save(ctx context.Context, c Collection) error
}
