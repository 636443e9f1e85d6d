// Package config provides the key/value store shared by every task, pipeline
// and event handler in one run.
//
// Keys are case-insensitive. A section is a key prefix separated by ':'; all
// sections of one store share the same backing map, so a value written through
// a section is visible from the root as "section:key".
//
// A Config is safe for concurrent use.
package config

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Separator joins section names and keys.
const Separator = ":"

type store struct {
	mu   sync.RWMutex
	data map[string]any
}

// Config is a view of a store scoped to one section. The root view has an
// empty name.
type Config struct {
	name string
	st   *store

	mu       sync.Mutex
	sections map[string]*Config
}

// New returns an empty root configuration.
func New() *Config {
	return newView("", &store{data: make(map[string]any)})
}

// FromMap returns a root configuration seeded with data. Keys are normalized;
// data is copied.
func FromMap(data map[string]any) *Config {
	c := New()
	for k, v := range data {
		c.st.data[strings.ToLower(k)] = v
	}
	return c
}

func newView(name string, st *store) *Config {
	return &Config{name: name, st: st, sections: make(map[string]*Config)}
}

// Name returns the full section name ("" for the root).
func (c *Config) Name() string {
	return c.name
}

func (c *Config) id(key string) string {
	if c.name == "" {
		return strings.ToLower(key)
	}
	return strings.ToLower(c.name + Separator + key)
}

// Lookup returns the value stored under key and whether it exists.
func (c *Config) Lookup(key string) (any, bool) {
	c.st.mu.RLock()
	defer c.st.mu.RUnlock()
	v, ok := c.st.data[c.id(key)]
	return v, ok
}

// Get returns the value stored under key, or nil.
func (c *Config) Get(key string) any {
	v, _ := c.Lookup(key)
	return v
}

// Set stores value under key.
func (c *Config) Set(key string, value any) {
	c.st.mu.Lock()
	c.st.data[c.id(key)] = value
	c.st.mu.Unlock()
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *Config) Delete(key string) {
	c.st.mu.Lock()
	delete(c.st.data, c.id(key))
	c.st.mu.Unlock()
}

// Keys returns the keys under this section, relative to it, sorted.
func (c *Config) Keys() []string {
	prefix := ""
	if c.name != "" {
		prefix = c.name + Separator
	}

	c.st.mu.RLock()
	keys := make([]string, 0, len(c.st.data))
	for k := range c.st.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	c.st.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of keys under this section.
func (c *Config) Len() int {
	return len(c.Keys())
}

// Section returns the sub-section called name. Sections are cached, so the
// same *Config is returned for the same name.
func (c *Config) Section(name string) *Config {
	name = strings.ToLower(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sections[name]; ok {
		return s
	}
	s := newView(c.id(name), c.st)
	c.sections[name] = s
	return s
}

// Env returns the "env" section, seeded from the process environment by
// EnvBuilder.
func (c *Config) Env() *Config {
	return c.Section("env")
}

// Copy returns an independent root configuration holding a shallow copy of
// every entry of the underlying store.
func (c *Config) Copy() *Config {
	c.st.mu.RLock()
	defer c.st.mu.RUnlock()

	data := make(map[string]any, len(c.st.data))
	for k, v := range c.st.data {
		data[k] = v
	}
	return newView("", &store{data: data})
}

// Map returns the entries under this section as a flat map keyed relative to
// the section.
func (c *Config) Map() map[string]any {
	out := make(map[string]any)
	for _, k := range c.Keys() {
		out[k] = c.Get(k)
	}
	return out
}

// Tree returns the entries under this section as nested maps, splitting keys
// on Separator.
func (c *Config) Tree() map[string]any {
	root := make(map[string]any)
	for k, v := range c.Map() {
		parts := strings.Split(k, Separator)
		node := root
		for _, p := range parts[:len(parts)-1] {
			next, ok := node[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[p] = next
			}
			node = next
		}
		node[parts[len(parts)-1]] = v
	}
	return root
}

// Decode decodes this section into out (a pointer to a struct or map) using
// weakly typed mapstructure rules, so "8" decodes into an int field and
// "1m" into a time.Duration.
func (c *Config) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Wrap(err, "config: create decoder")
	}
	if err := dec.Decode(c.Tree()); err != nil {
		return errors.Wrapf(err, "config: decode section %q", c.name)
	}
	return nil
}

// String returns the value under key formatted as a string, or "".
func (c *Config) String(key string) string {
	switch v := c.Get(key).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		var s string
		if err := mapstructure.WeakDecode(v, &s); err != nil {
			return ""
		}
		return s
	}
}

// Bool returns the value under key interpreted as a boolean.
func (c *Config) Bool(key string) bool {
	switch v := c.Get(key).(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		var b bool
		_ = mapstructure.WeakDecode(v, &b)
		return b
	}
}

// Int returns the value under key interpreted as an int, or 0.
func (c *Config) Int(key string) int {
	var n int
	if v := c.Get(key); v != nil {
		_ = mapstructure.WeakDecode(v, &n)
	}
	return n
}

// Duration returns the value under key interpreted as a time.Duration. String
// values are parsed with time.ParseDuration; numbers are taken as seconds.
func (c *Config) Duration(key string) time.Duration {
	switch v := c.Get(key).(type) {
	case time.Duration:
		return v
	case string:
		d, _ := time.ParseDuration(v)
		return d
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		return 0
	}
}

// Path returns the value under key as a cleaned file path, or "".
func (c *Config) Path(key string) string {
	s := c.String(key)
	if s == "" {
		return ""
	}
	return filepath.Clean(s)
}

// Lookup returns the value under key converted to T.
func Lookup[T any](c *Config, key string) (T, bool) {
	var zero T
	v, ok := c.Lookup(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Get returns the value under key converted to T, or the zero value.
func Get[T any](c *Config, key string) T {
	v, _ := Lookup[T](c, key)
	return v
}

// MustGet returns the value under key converted to T, or panics. Use it where
// a dependency is known to have stored the value.
func MustGet[T any](c *Config, key string) T {
	v, ok := Lookup[T](c, key)
	if !ok {
		panic(errors.Errorf("config: key %q not found or wrong type (expected %T)", c.id(key), *new(T)))
	}
	return v
}
