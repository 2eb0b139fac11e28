package stream

import (
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrUnknownStream is returned when a requested name is not exposed by
	// the reader.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrStorageMismatch is returned when the requested storage kind differs
	// from the one the reader exposes.
	ErrStorageMismatch = errors.New("storage type mismatch")

	// ErrDuplicateStream is returned when a name is requested twice or
	// exposed twice.
	ErrDuplicateStream = errors.New("duplicate stream")
)

// ResolveError is returned by NewRegistry when a requested input cannot be
// resolved.
type ResolveError struct {
	Name string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("stream %q: %v", e.Name, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Registry maps requested stream names to the descriptions exposed by a
// reader. Create one with NewRegistry.
//
// A Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	byName *orderedmap.OrderedMap[string, *Description]
}

// NewRegistry resolves every requested input against the streams exposed by
// a reader. The registry keeps the order of requested.
func NewRegistry(exposed []*Description, requested []InputDescription) (*Registry, error) {
	available := make(map[string]*Description, len(exposed))
	for _, d := range exposed {
		if d == nil {
			continue
		}
		if _, ok := available[d.Name]; ok {
			return nil, &ResolveError{Name: d.Name, Err: ErrDuplicateStream}
		}
		available[d.Name] = d
	}

	byName := orderedmap.New[string, *Description]()
	for _, in := range requested {
		d, ok := available[in.Name]
		if !ok {
			return nil, &ResolveError{Name: in.Name, Err: ErrUnknownStream}
		}
		if in.StorageType != StorageUndefined && in.StorageType != d.StorageType {
			return nil, &ResolveError{
				Name: in.Name,
				Err:  fmt.Errorf("%w: requested %s, reader exposes %s", ErrStorageMismatch, in.StorageType, d.StorageType),
			}
		}
		if _, present := byName.Get(in.Name); present {
			return nil, &ResolveError{Name: in.Name, Err: ErrDuplicateStream}
		}
		byName.Set(in.Name, d)
	}

	return &Registry{byName: byName}, nil
}

// ID returns the stream id for name.
func (r *Registry) ID(name string) (int, bool) {
	d, ok := r.Lookup(name)
	if !ok {
		return 0, false
	}
	return d.ID, true
}

// Lookup returns the description for name.
func (r *Registry) Lookup(name string) (*Description, bool) {
	if r == nil {
		return nil, false
	}
	return r.byName.Get(name)
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return r.byName.Len()
}

// Names returns the registered names in request order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, r.byName.Len())
	for pair := r.byName.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Descriptions returns the registered descriptions in request order.
func (r *Registry) Descriptions() []*Description {
	if r == nil {
		return nil
	}
	descs := make([]*Description, 0, r.byName.Len())
	for pair := r.byName.Oldest(); pair != nil; pair = pair.Next() {
		descs = append(descs, pair.Value)
	}
	return descs
}
