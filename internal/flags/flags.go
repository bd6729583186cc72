// Package flags holds the feature flags that switch optional core behavior.
// A Registry is read-only once built; unknown names read as off.
package flags

import (
	"fmt"
	"maps"
	"slices"

	"github.com/zjrosen/register/internal/log"
)

const (
	// FlagRegisterCache routes register existence checks through the cache.
	FlagRegisterCache = "register-cache"
	// FlagSealLock serializes docket creation and sealing per register inside
	// the process. The repository height check still applies when off.
	FlagSealLock = "seal-lock"
)

// Definition describes one known flag.
type Definition struct {
	Name        string
	Default     bool
	Description string
}

var definitions = []Definition{
	{FlagRegisterCache, true, "cache positive register existence lookups"},
	{FlagSealLock, true, "serialize docket create/seal per register in-process"},
}

// Definitions returns every known flag ordered by name.
func Definitions() []Definition {
	defs := slices.Clone(definitions)
	slices.SortFunc(defs, func(a, b Definition) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return defs
}

// Known reports whether name is a defined flag.
func Known(name string) bool {
	return slices.ContainsFunc(definitions, func(d Definition) bool { return d.Name == name })
}

// Defaults returns the built-in value of every known flag.
func Defaults() map[string]bool {
	out := make(map[string]bool, len(definitions))
	for _, d := range definitions {
		out[d.Name] = d.Default
	}
	return out
}

// Validate rejects names that are not defined flags.
func Validate(values map[string]bool) error {
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if !Known(name) {
			return fmt.Errorf("unknown feature flag %q", name)
		}
	}
	return nil
}

// Registry is a read-only snapshot of flag values.
type Registry struct {
	flags map[string]bool
}

// New layers values over Defaults. Unknown names are kept so they can be
// reported, but only defined flags affect behavior.
func New(values map[string]bool) *Registry {
	merged := Defaults()
	maps.Copy(merged, values)
	r := &Registry{flags: merged}
	log.Debug(log.CatConfig, "feature flags", "flags", r.All())
	return r
}

// Enabled reports the value of name. It is false for unknown names and on a
// nil Registry.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	value, ok := r.flags[name]
	if !ok {
		log.Debug(log.CatConfig, "unknown flag read", "flag", name)
	}
	return value
}

// All returns a copy of every value, empty for a nil Registry.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}
