// Package memory is the run-scoped key/value façade of spec.md §4.2 (the
// "MemoryService"), a thin layer over an external store port. A run owns
// the scope "run:{run_id}"; the orchestrator writes orchestration keys
// into it and never shares it across runs, per spec.md §3 "Ownership".
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is one key/value pair returned by a Search.
type Entry struct {
	Key   string
	Value string
}

// Store is the external scoped key/value contract spec.md §6 requires:
// write(key, value, scope), read(key, scope), search(needle, scope),
// reset(scope). Implementations must be safe for concurrent use since the
// orchestrator and its subagents may write to the same scope concurrently
// (spec.md §5 "Shared resources": writes are fire-and-forget relative to
// ordering).
type Store interface {
	Write(ctx context.Context, scope, key, value string) error
	Read(ctx context.Context, scope, key string) (string, bool, error)
	Search(ctx context.Context, scope, needle string) ([]Entry, error)
	Reset(ctx context.Context, scope string) error
}

// Service scopes a Store to one run and marshals/unmarshals values as
// JSON, so callers write and read Go values directly instead of strings.
// Grounded on internal/core/ports/storage.go's EventStore/SessionRepository
// contracts, generalized from aggregate-event persistence to plain KV.
type Service struct {
	store Store
	scope string
}

// NewService builds a Service scoped to "run:{runID}".
func NewService(store Store, runID string) *Service {
	return &Service{store: store, scope: "run:" + runID}
}

// Scope returns the run-scoped namespace this Service writes into.
func (s *Service) Scope() string {
	return s.scope
}

// Write JSON-encodes value and stores it under key in this run's scope.
func (s *Service) Write(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory: marshal %s: %w", key, err)
	}
	return s.store.Write(ctx, s.scope, key, string(raw))
}

// Read decodes the value stored under key into out. ok is false when the
// key is absent; err is non-nil only on a store-level failure or a JSON
// decode failure of a present value.
func (s *Service) Read(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := s.store.Read(ctx, s.scope, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("memory: decode %s: %w", key, err)
	}
	return true, nil
}

// Search returns all key/value pairs in this run's scope whose key
// contains needle, used by the orchestrator to build
// LeadAgent.create_iteration_plan's memory_context from prior
// planning/synthesis entries (spec.md §4.3 step 1).
func (s *Service) Search(ctx context.Context, needle string) ([]Entry, error) {
	return s.store.Search(ctx, s.scope, needle)
}

// Reset clears every key in this run's scope.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.Reset(ctx, s.scope)
}

// WriteDigest persists v under key as YAML rather than JSON, used
// specifically for the on-disk inspect_run digest format of spec.md §6
// "Run inspection". Kept distinct from Write's JSON encoding so the
// digest format can be inspected as a readable document on disk.
func (s *Service) WriteDigest(ctx context.Context, key string, v any) error {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("memory: marshal digest %s: %w", key, err)
	}
	return s.store.Write(ctx, s.scope, key, string(raw))
}

// ReadDigest decodes a YAML-encoded digest previously written with
// WriteDigest. ok is false when the key is absent.
func (s *Service) ReadDigest(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := s.store.Read(ctx, s.scope, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := yaml.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("memory: decode digest %s: %w", key, err)
	}
	return true, nil
}
