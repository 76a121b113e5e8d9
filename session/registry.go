package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrDuplicateProtocol = errors.New("session: protocol registered twice")
	ErrEmptyProtocol     = errors.New("session: factory has no protocol name")
)

// Registry maps protocol names to factories. It is built at startup and
// read concurrently by every connection.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry registers every factory. Empty or repeated protocol names are
// reported together and no registry is returned.
func NewRegistry(factories ...Factory) (*Registry, error) {
	r := &Registry{factories: make(map[string]Factory, len(factories))}
	var result *multierror.Error
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds f. It fails if the protocol name is empty or taken.
func (r *Registry) Register(f Factory) error {
	name := f.Protocol()
	if name == "" {
		return ErrEmptyProtocol
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateProtocol, name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) Lookup(protocol string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[protocol]
	return f, ok
}

// Protocols returns the registered names in sorted order.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
