// Package registry resolves operation names to their declared tool metadata.
// The registry is an inbound collaborator: declared base risk and approval
// flags are authoritative input to validation, never re-derived here.
package registry

import (
	"sort"
	"sync"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// Registry looks up tool descriptors by operation name.
type Registry interface {
	// Lookup returns the descriptor for an operation name. Unknown
	// operations return a conservative default descriptor and false.
	Lookup(operation string) (contracts.ToolDescriptor, bool)
}

// DefaultDescriptor is returned for operations the registry does not know.
// Unknown tools are treated as medium-risk writes that require approval,
// which fails closed rather than guessing.
func DefaultDescriptor(operation string) contracts.ToolDescriptor {
	return contracts.ToolDescriptor{
		Name:             operation,
		Category:         contracts.CategoryWrite,
		BaseRisk:         contracts.RiskMedium,
		RequiresApproval: true,
	}
}

// StaticRegistry is an in-memory registry built once from configuration.
type StaticRegistry struct {
	mu    sync.RWMutex
	tools map[string]contracts.ToolDescriptor
}

// NewStaticRegistry indexes the given descriptors by name.
func NewStaticRegistry(descriptors ...contracts.ToolDescriptor) *StaticRegistry {
	tools := make(map[string]contracts.ToolDescriptor, len(descriptors))
	for _, d := range descriptors {
		tools[d.Name] = d
	}
	return &StaticRegistry{tools: tools}
}

// Lookup implements Registry.
func (r *StaticRegistry) Lookup(operation string) (contracts.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[operation]
	if !ok {
		return DefaultDescriptor(operation), false
	}
	return d, true
}

// Register adds or replaces a descriptor. Intended for setup, not for
// concurrent use with in-flight validations of the same tool.
func (r *StaticRegistry) Register(d contracts.ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
}

// Names returns all registered operation names, sorted.
func (r *StaticRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
