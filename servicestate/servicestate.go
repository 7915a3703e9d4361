// Package servicestate implements the on/off service-state management
// facade: a pure key-value CRUD layer over a blob store, kept architecturally
// separate from the queue Provider per the design note that the two must
// never share an observer instance (a logger backed by this facade would
// otherwise recurse into its own queue).
package servicestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	lokadcloud "github.com/ischyrus/lokad-cloud-storage"
)

// State is the on/off status of a managed service.
type State string

const (
	Started State = "started"
	Stopped State = "stopped"
)

// DefaultContainer is the blob container service state records are stored
// in when a Store is not given an explicit one.
const DefaultContainer = "lokad-cloud-servicestate"

// Store is the management facade: CRUD over a BlobGateway, keyed by
// <prefix>/<service-name>.
type Store struct {
	blobs     lokadcloud.BlobGateway
	container string
	prefix    string
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithContainer overrides the blob container service state is stored in.
func WithContainer(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.container = name
		}
	}
}

// WithPrefix sets the key prefix service names are stored under.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = strings.Trim(prefix, "/") }
}

// New constructs a Store over blobs.
func New(blobs lokadcloud.BlobGateway, opts ...Option) (*Store, error) {
	if blobs == nil {
		return nil, fmt.Errorf("servicestate: blob gateway is required")
	}
	s := &Store{blobs: blobs, container: DefaultContainer}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type record struct {
	State State `json:"state"`
}

func (s *Store) blobName(service string) string {
	if s.prefix == "" {
		return service
	}
	return path.Join(s.prefix, service)
}

// Toggle sets service's state, creating the backing container on first
// use.
func (s *Store) Toggle(ctx context.Context, service string, state State) error {
	body, err := json.Marshal(record{State: state})
	if err != nil {
		return fmt.Errorf("servicestate: encode state: %w", err)
	}
	name := s.blobName(service)
	if err := s.blobs.PutBlob(ctx, s.container, name, body); err != nil {
		if !errors.Is(err, lokadcloud.ErrContainerNotFound) {
			return fmt.Errorf("servicestate: put state for %q: %w", service, err)
		}
		if err := s.blobs.CreateContainer(ctx, s.container); err != nil {
			return fmt.Errorf("servicestate: create container: %w", err)
		}
		if err := s.blobs.PutBlob(ctx, s.container, name, body); err != nil {
			return fmt.Errorf("servicestate: put state for %q: %w", service, err)
		}
	}
	return nil
}

// Read returns service's current state. ok is false if no state has ever
// been recorded for service.
func (s *Store) Read(ctx context.Context, service string) (state State, ok bool, err error) {
	body, ok, err := s.blobs.GetBlob(ctx, s.container, s.blobName(service))
	if err != nil {
		return "", false, fmt.Errorf("servicestate: read state for %q: %w", service, err)
	}
	if !ok {
		return "", false, nil
	}
	var rec record
	if err := json.Unmarshal(body, &rec); err != nil {
		return "", false, fmt.Errorf("servicestate: decode state for %q: %w", service, err)
	}
	return rec.State, true, nil
}

// List returns the names of every service with a recorded state.
//
// Listing needs a ListBlobs primitive that the core's BlobGateway
// (PutBlob/GetBlob/DeleteBlob/CreateContainer) does not expose, so List
// works only when the Store's gateway also implements listBlobsGateway;
// with any other gateway it returns an error.
func (s *Store) List(ctx context.Context) ([]string, error) {
	lister, ok := s.blobs.(listBlobsGateway)
	if !ok {
		return nil, fmt.Errorf("servicestate: blob gateway does not support listing")
	}
	listPrefix := s.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}
	blobNames, err := lister.ListBlobs(ctx, s.container, listPrefix)
	if err != nil {
		return nil, fmt.Errorf("servicestate: list services: %w", err)
	}
	names := make([]string, 0, len(blobNames))
	for _, name := range blobNames {
		names = append(names, strings.TrimPrefix(name, listPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the recorded state for service. Absence is not an error.
func (s *Store) Delete(ctx context.Context, service string) error {
	if err := s.blobs.DeleteBlob(ctx, s.container, s.blobName(service)); err != nil {
		return fmt.Errorf("servicestate: delete state for %q: %w", service, err)
	}
	return nil
}

// listBlobsGateway is an optional capability a BlobGateway implementation
// may provide to support Store.List. It is intentionally not part of
// lokadcloud.BlobGateway itself.
type listBlobsGateway interface {
	ListBlobs(ctx context.Context, container, prefix string) ([]string, error)
}
