package backend

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/AkaraChen/fama/pkg/fama/language"
)

// Registry is the tag → capability table. It is populated during startup and
// frozen before the run starts; afterwards it is read-only.
type Registry struct {
	mu      sync.RWMutex
	entries map[language.Tag]Capability
	frozen  bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(loggerHandler slog.Handler) *Registry {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Registry{
		entries: make(map[language.Tag]Capability),
		logger:  slog.New(loggerHandler).With(slog.String("component", "registry")),
	}
}

// Register binds c to tags, replacing earlier bindings. It fails after Freeze.
func (r *Registry) Register(c Capability, tags ...language.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %q", c.Name())
	}
	for _, tag := range tags {
		if tag == language.Unknown {
			return fmt.Errorf("cannot register %q for the unknown language", c.Name())
		}
		if prev, ok := r.entries[tag]; ok && prev.Name() != c.Name() {
			r.logger.Debug("Replacing formatter", slog.String("language", tag.String()),
				slog.String("previous", prev.Name()), slog.String("next", c.Name()))
		}
		r.entries[tag] = c
	}
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve returns the capability for tag, or ErrNotSupported.
func (r *Registry) Resolve(tag language.Tag) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tag == language.Unknown {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, tag)
	}
	c, ok := r.entries[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, tag)
	}
	return c, nil
}

// Tags lists the tags with a registered capability, in tag order.
func (r *Registry) Tags() []language.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]language.Tag, 0, len(r.entries))
	for tag := range r.entries {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
