package tool

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"webscout/internal/domain"
)

// Registry is the set of tools the server exposes, keyed by name. Tools are
// stored wrapped in SchemaValidatingTool so params are checked before they
// reach a handler.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]domain.Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]domain.Tool)}
}

// Register adds tools in order and stops at the first one whose name is taken
// or whose schema does not compile. Tools added before the failure stay.
func (r *Registry) Register(tools ...domain.Tool) error {
	for _, t := range tools {
		if err := r.register(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) register(t domain.Tool) error {
	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name()]; dup {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = wrapped
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns the tools sorted by name so tools/list output is stable.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	slices.SortFunc(tools, func(a, b domain.Tool) int { return strings.Compare(a.Name(), b.Name()) })
	return tools
}

var _ domain.ToolExecutor = (*Registry)(nil)
