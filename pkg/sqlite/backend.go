// Package sqlite provides the public API for the SQLite fiber plant
// repository. It exposes the factory while keeping implementation details
// internal.
package sqlite

import (
	"log/slog"

	"github.com/mesh-intelligence/fiberplant/internal/sqlite"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// NewBackend creates a new SQLite repository. The repository is not
// attached; call Attach with a Config to initialize. A nil logger discards
// log output.
//
// Example:
//
//	repo := sqlite.NewBackend(nil)
//	err := repo.Attach(types.DefaultConfig(".fiberplant-db"))
//	defer repo.Detach()
func NewBackend(log *slog.Logger) types.Backend {
	return sqlite.NewBackend(sqlite.WithLogger(log))
}
