package catalog

import (
	"sync"
)

// Catalog is the read-mostly, concurrently safe view over the module and
// plan definitions. Lookups take a read lock; Replace swaps the whole
// snapshot atomically on reload.
type Catalog struct {
	mu      sync.RWMutex
	modules map[string]Module
	subs    map[string]map[string]Submodule
	plans   map[string]map[string]string // plan key -> module key -> status
}

// New builds a catalog from a validated file
func New(f *File) *Catalog {
	c := &Catalog{}
	c.Replace(f)
	return c
}

// Replace swaps the catalog contents for a new snapshot
func (c *Catalog) Replace(f *File) {
	modules := make(map[string]Module, len(f.Modules))
	subs := make(map[string]map[string]Submodule, len(f.Modules))
	for _, m := range f.Modules {
		modules[m.Key] = m
		if len(m.Submodules) > 0 {
			sm := make(map[string]Submodule, len(m.Submodules))
			for _, sub := range m.Submodules {
				sm[sub.Key] = sub
			}
			subs[m.Key] = sm
		}
	}

	plans := make(map[string]map[string]string, len(f.Plans))
	for _, p := range f.Plans {
		defaults := make(map[string]string, len(p.Defaults))
		for _, d := range p.Defaults {
			defaults[d.Module] = d.Status
		}
		plans[p.Key] = defaults
	}

	c.mu.Lock()
	c.modules = modules
	c.subs = subs
	c.plans = plans
	c.mu.Unlock()
}

// Module returns the module definition for a key
func (c *Catalog) Module(key string) (Module, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[key]
	if !ok {
		return Module{}, ErrUnknownKey
	}
	return m, nil
}

// Submodule returns the submodule definition under a module
func (c *Catalog) Submodule(moduleKey, subKey string) (Submodule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.modules[moduleKey]; !ok {
		return Submodule{}, ErrUnknownKey
	}
	sub, ok := c.subs[moduleKey][subKey]
	if !ok {
		return Submodule{}, ErrUnknownKey
	}
	return sub, nil
}

// Modules returns all module definitions
func (c *Catalog) Modules() []Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Module, 0, len(c.modules))
	for _, m := range c.modules {
		out = append(out, m)
	}
	return out
}

// PlanDefault returns a plan's default status for a module, if the plan
// defines one.
func (c *Catalog) PlanDefault(planKey, moduleKey string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.plans[planKey][moduleKey]
	return status, ok
}

// HasPlan reports whether a plan key exists
func (c *Catalog) HasPlan(planKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.plans[planKey]
	return ok
}
