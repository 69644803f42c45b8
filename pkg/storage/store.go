package storage

import (
	"github.com/RhyVis/meta-manager/pkg/types"
)

// Store defines the interface for library storage.
// Implementations return copies; callers never share state with the store.
type Store interface {
	// Records
	Get(id string) (*types.Record, error)
	List() ([]*types.Record, error)
	Put(rec *types.Record) error
	PutAll(recs []*types.Record) error
	Delete(id string) error
	Count() (int, error)

	// Interchange
	Export() (string, error)
	Import() (bool, error)

	// Utility
	WarmUp() error
	Close() error
}
