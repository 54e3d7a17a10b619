// Package cvar is a small console-variable store: named string values with a
// default, a description and change callbacks.
package cvar

import (
	"strconv"
	"strings"
	"sync"

	"github.com/alexj212/rconkit/safemap"
)

// CVar is one console variable.
type CVar struct {
	Name        string
	Default     string
	Description string

	mu        sync.RWMutex
	value     string
	isSet     bool
	listeners []func(oldValue, newValue string)
}

// Value returns the current value.
func (v *CVar) Value() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Store holds every registered variable.
type Store struct {
	vars *safemap.SafeMap[string, *CVar]
}

func NewStore() *Store {
	return &Store{vars: safemap.New[string, *CVar]()}
}

func (s *Store) lookup(name string) *CVar {
	v, _ := s.vars.GetOrCreate(name, func() *CVar {
		return &CVar{Name: name}
	})
	return v
}

// Register declares name with a default and description. A value set before
// registration (for example from a config file) is kept.
func (s *Store) Register(name, defaultValue, description string) {
	v := s.lookup(name)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.Default = defaultValue
	v.Description = description
	if !v.isSet {
		v.value = defaultValue
	}
}

// Lookup returns the variable called name.
func (s *Store) Lookup(name string) (*CVar, bool) {
	return s.vars.Get(name)
}

// Has reports whether name exists.
func (s *Store) Has(name string) bool {
	_, ok := s.vars.Get(name)
	return ok
}

// Set stores value and notifies listeners if it changed. Listeners run on the
// caller's goroutine, after the new value is visible.
func (s *Store) Set(name, value string) {
	v := s.lookup(name)

	v.mu.Lock()
	v.isSet = true
	old := v.value
	if old == value {
		v.mu.Unlock()
		return
	}
	v.value = value
	listeners := append([]func(string, string){}, v.listeners...)
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(old, value)
	}
}

// Reset restores the default value.
func (s *Store) Reset(name string) {
	if v, ok := s.vars.Get(name); ok {
		s.Set(name, v.Default)
	}
}

// OnChange adds a listener for name.
func (s *Store) OnChange(name string, fn func(oldValue, newValue string)) {
	v := s.lookup(name)
	v.mu.Lock()
	v.listeners = append(v.listeners, fn)
	v.mu.Unlock()
}

func (s *Store) GetString(name string) string {
	if v, ok := s.vars.Get(name); ok {
		return v.Value()
	}
	return ""
}

// GetInt parses the value as an integer; invalid values read as 0.
func (s *Store) GetInt(name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s.GetString(name)))
	if err != nil {
		return 0
	}
	return n
}

// GetBool accepts 1/true/yes/on, case-insensitively.
func (s *Store) GetBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(s.GetString(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ForEach visits the variables ordered by name.
func (s *Store) ForEach(f func(v *CVar) bool) {
	s.vars.SortedForEach(func(_ string, v *CVar) bool {
		return f(v)
	})
}

// Snapshot returns name/value pairs for every variable.
func (s *Store) Snapshot() map[string]string {
	out := make(map[string]string, s.vars.Len())
	s.vars.ForEach(func(name string, v *CVar) bool {
		out[name] = v.Value()
		return false
	})
	return out
}
