/*
resource.go - Registry of resource kinds

PURPOSE:
  Journal entries and save points store resources by ID. The registry maps
  those IDs back to the kinds the economy package defines, so generic never
  imports economy.

HOW IT WORKS:
  economy registers every good plus cash and labor from init(). Decoding code
  calls GetOrCreateResource; an ID nobody registered decodes to a
  StringResource so old journals still load.

  An ID registers once per unit. Registering it again with another unit is a
  programming error and panics at init.

SEE ALSO:
  - types.go: ResourceKind interface definition
  - economy/types.go: Goods, cash and labor
*/
package generic

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ResourceKind)
)

// RegisterResource adds r to the registry. Re-registering the same ID with the
// same unit is a no-op.
func RegisterResource(r ResourceKind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if prev, ok := registry[r.ResourceID()]; ok && prev.ResourceUnit() != r.ResourceUnit() {
		panic(fmt.Sprintf("resource %s registered as %s and %s", r.ResourceID(), prev.ResourceUnit(), r.ResourceUnit()))
	}
	registry[r.ResourceID()] = r
}

// LookupResource returns the registered kind for id, or nil.
func LookupResource(id string) ResourceKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[id]
}

// ListResources returns every registered kind ordered by ID.
func ListResources() []ResourceKind {
	registryMu.RLock()
	out := make([]ResourceKind, 0, len(registry))
	for _, r := range registry {
		out = append(out, r)
	}
	registryMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID() < out[j].ResourceID() })
	return out
}

// GetOrCreateResource resolves id, falling back to an unregistered
// StringResource counted in goods.
func GetOrCreateResource(id string) ResourceKind {
	if r := LookupResource(id); r != nil {
		return r
	}
	return NewStringResource(id)
}

// StringResource is a resource kind known only by its ID. Tests use it for
// throwaway goods.
type StringResource struct {
	ID     string
	Domain string
	Unit   Unit
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return r.Domain }
func (r StringResource) ResourceUnit() Unit {
	if r.Unit == "" {
		return UnitGoods
	}
	return r.Unit
}

func NewStringResource(id string) StringResource {
	return StringResource{ID: id, Domain: "unknown", Unit: UnitGoods}
}
