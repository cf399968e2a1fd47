package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML shape of a registry snapshot.
type Fixture struct {
	Partners []Partner `yaml:"partners"`
	Children []Child   `yaml:"children"`
}

// MemoryRegistry serves lookups from an in-memory snapshot.
type MemoryRegistry struct {
	mu       sync.RWMutex
	partners []Partner
	children []Child
}

// NewMemoryRegistry builds a registry from the given records.
func NewMemoryRegistry(partners []Partner, children []Child) *MemoryRegistry {
	r := &MemoryRegistry{}
	r.Replace(partners, children)
	return r
}

// LoadFixture reads a YAML snapshot from path.
func LoadFixture(path string) (*MemoryRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parse registry fixture %s: %w", path, err)
	}
	return NewMemoryRegistry(fx.Partners, fx.Children), nil
}

// Replace swaps the snapshot. Records are kept sorted by id.
func (r *MemoryRegistry) Replace(partners []Partner, children []Child) {
	p := append([]Partner(nil), partners...)
	c := append([]Child(nil), children...)
	sort.SliceStable(p, func(i, j int) bool { return p[i].ID < p[j].ID })
	sort.SliceStable(c, func(i, j int) bool { return c[i].ID < c[j].ID })

	r.mu.Lock()
	r.partners = p
	r.children = c
	r.mu.Unlock()
}

// FindPartnerByRef returns the lowest-id partner whose ref equals ref.
func (r *MemoryRegistry) FindPartnerByRef(ctx context.Context, ref string) (Partner, error) {
	if err := ctx.Err(); err != nil {
		return Partner{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.partners {
		if p.Ref == ref {
			return p, nil
		}
	}
	return Partner{}, ErrNotFound
}

// FindChildByCode returns the lowest-id child whose code equals code, or
// failing that, whose local id equals code.
func (r *MemoryRegistry) FindChildByCode(ctx context.Context, code string) (Child, error) {
	if err := ctx.Err(); err != nil {
		return Child{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.children {
		if c.Code == code {
			return c, nil
		}
	}
	for _, c := range r.children {
		if c.LocalID != "" && c.LocalID == code {
			return c, nil
		}
	}
	return Child{}, ErrNotFound
}

var _ Registry = (*MemoryRegistry)(nil)
