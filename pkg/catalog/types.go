// Package catalog holds the global module, submodule, and plan catalog the
// authorization core reads. The catalog is administrator-managed, rarely
// mutated, and read-only at enforcement time.
package catalog

import (
	"errors"
	"fmt"
)

// ErrUnknownKey is returned when a module or submodule key is not in the
// catalog. Callers treat it as fail-closed and log it: it indicates drift
// between a caller and the catalog, never a user error.
var ErrUnknownKey = errors.New("catalog: unknown key")

// Module is a globally-defined business module. AlwaysOn modules skip
// entitlement checks entirely; RBACOnly modules skip entitlement checks but
// still go through the permission index.
type Module struct {
	Key        string      `yaml:"key" json:"key"`
	Name       string      `yaml:"name" json:"name"`
	AlwaysOn   bool        `yaml:"always_on" json:"always_on"`
	RBACOnly   bool        `yaml:"rbac_only" json:"rbac_only"`
	Submodules []Submodule `yaml:"submodules,omitempty" json:"submodules,omitempty"`
}

// Submodule belongs to exactly one module and carries the same status
// semantics at a finer grain.
type Submodule struct {
	Key      string `yaml:"key" json:"key"`
	Name     string `yaml:"name" json:"name"`
	AlwaysOn bool   `yaml:"always_on" json:"always_on"`
	RBACOnly bool   `yaml:"rbac_only" json:"rbac_only"`
}

// PlanDefault is a plan's default status for one module
type PlanDefault struct {
	Module string `yaml:"module" json:"module"`
	Status string `yaml:"status" json:"status"`
}

// Plan is a named bundle of module defaults referenced by an organization's
// subscription.
type Plan struct {
	Key      string        `yaml:"key" json:"key"`
	Name     string        `yaml:"name" json:"name"`
	Defaults []PlanDefault `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// File is the on-disk YAML catalog shape
type File struct {
	Modules []Module `yaml:"modules"`
	Plans   []Plan   `yaml:"plans"`
}

// Validate checks the catalog for duplicate or dangling keys
func (f *File) Validate() error {
	mods := make(map[string]struct{}, len(f.Modules))
	for _, m := range f.Modules {
		if m.Key == "" {
			return fmt.Errorf("module with empty key")
		}
		if _, dup := mods[m.Key]; dup {
			return fmt.Errorf("duplicate module key %q", m.Key)
		}
		mods[m.Key] = struct{}{}

		subs := make(map[string]struct{}, len(m.Submodules))
		for _, sub := range m.Submodules {
			if sub.Key == "" {
				return fmt.Errorf("module %q: submodule with empty key", m.Key)
			}
			if _, dup := subs[sub.Key]; dup {
				return fmt.Errorf("module %q: duplicate submodule key %q", m.Key, sub.Key)
			}
			subs[sub.Key] = struct{}{}
		}
	}

	plans := make(map[string]struct{}, len(f.Plans))
	for _, p := range f.Plans {
		if p.Key == "" {
			return fmt.Errorf("plan with empty key")
		}
		if _, dup := plans[p.Key]; dup {
			return fmt.Errorf("duplicate plan key %q", p.Key)
		}
		plans[p.Key] = struct{}{}

		for _, d := range p.Defaults {
			if _, ok := mods[d.Module]; !ok {
				return fmt.Errorf("plan %q: default for unknown module %q", p.Key, d.Module)
			}
			switch d.Status {
			case "enabled", "disabled", "trial":
			default:
				return fmt.Errorf("plan %q: invalid status %q for module %q", p.Key, d.Status, d.Module)
			}
		}
	}

	return nil
}
