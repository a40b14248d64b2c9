package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a lookup for an entity the graph does not contain.
	ErrNotFound = errors.New("entity not found")

	// ErrNoActiveBuild reports a query issued before any graph build completed.
	ErrNoActiveBuild = errors.New("no active graph build")

	// ErrNoLanguageModel reports an answer request against a client that was
	// configured without a chat model.
	ErrNoLanguageModel = errors.New("no language model configured")
)

// NotFoundError carries the id of a missing entity. It unwraps to ErrNotFound
// so callers can test with errors.Is without caring which lookup failed.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entity not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DanglingReferenceError reports an edge naming an endpoint the graph does not
// contain. Build pipelines log it and drop the edge; it is never fatal.
type DanglingReferenceError struct {
	Source  string
	Target  string
	Kind    string
	Missing string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling edge %s -[%s]-> %s: unknown entity %s",
		e.Source, e.Kind, e.Target, e.Missing)
}

func (e *DanglingReferenceError) Unwrap() error { return ErrNotFound }

// ConfigurationError reports an invalid startup configuration. It surfaces
// during construction only; query paths never return it.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
