package types

// Backend is a Repository with an attach lifecycle. Callers attach to a
// data directory, edit through the Repository methods, and detach when done.
type Backend interface {
	Repository

	// Attach connects the backend to the data directory described by
	// config, creating it if needed. Returns ErrAlreadyAttached if called
	// while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, repository calls return ErrDetached.
	Detach() error
}
