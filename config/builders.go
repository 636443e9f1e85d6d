package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// KeepKey marks a nested map that should be stored as a single value instead
// of being expanded into a section.
const KeepKey = "__keep__"

// EnvPrefix selects environment variables that are promoted to the root
// section by EnvBuilder. FORGE_JOBS becomes "jobs" and FORGE_GO__FLAGS
// becomes "go:flags".
const EnvPrefix = "FORGE_"

// Builder populates a configuration.
type Builder interface {
	Build(c *Config) error
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(c *Config) error

func (f BuilderFunc) Build(c *Config) error { return f(c) }

// EnvBuilder copies the process environment into the "env" section and
// promotes EnvPrefix variables to the root.
type EnvBuilder struct {
	// Environ defaults to os.Environ.
	Environ func() []string
}

func (b EnvBuilder) Build(c *Config) error {
	environ := b.Environ
	if environ == nil {
		environ = os.Environ
	}

	env := c.Env()
	for _, kv := range environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env.Set(k, v)

		if len(k) > len(EnvPrefix) && strings.EqualFold(k[:len(EnvPrefix)], EnvPrefix) {
			c.Set(strings.ReplaceAll(k[len(EnvPrefix):], "__", Separator), v)
		}
	}
	return nil
}

// MapBuilder copies a nested map. Nested maps become sections unless they
// carry KeepKey.
type MapBuilder map[string]any

func (b MapBuilder) Build(c *Config) error {
	for k, v := range b {
		nested, ok := asMap(v)
		if !ok {
			c.Set(k, v)
			continue
		}
		if _, keep := nested[KeepKey]; keep {
			raw := make(map[string]any, len(nested)-1)
			for nk, nv := range nested {
				if nk != KeepKey {
					raw[nk] = nv
				}
			}
			c.Set(k, raw)
			continue
		}
		if err := MapBuilder(nested).Build(c.Section(k)); err != nil {
			return err
		}
	}
	return nil
}

// asMap accepts both map flavours produced by decoders (yaml.v2 yields
// map[interface{}]interface{}).
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// FileBuilder reads a json, yaml or toml file through viper. A missing file
// is not an error.
type FileBuilder struct {
	Path string
}

func (b FileBuilder) Build(c *Config) error {
	if _, err := os.Stat(b.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "config: stat %s", b.Path)
	}

	v := viper.New()
	v.SetConfigFile(b.Path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "config: read %s", b.Path)
	}
	return ViperBuilder{Viper: v}.Build(c)
}

// ViperBuilder copies every setting of an existing viper instance.
type ViperBuilder struct {
	Viper *viper.Viper
}

func (b ViperBuilder) Build(c *Config) error {
	if b.Viper == nil {
		return nil
	}
	return MapBuilder(b.Viper.AllSettings()).Build(c)
}

// Builders runs each builder in order; later builders override earlier ones.
type Builders []Builder

func (bs Builders) Build(c *Config) error {
	for _, b := range bs {
		if err := b.Build(c); err != nil {
			return err
		}
	}
	return nil
}

// DefaultFiles are read by DefaultBuilder from the working directory.
var DefaultFiles = []string{"forge.json", "forge.yaml", "forge.yml"}

// DefaultBuilder reads the environment and then DefaultFiles.
func DefaultBuilder() Builders {
	bs := Builders{EnvBuilder{}}
	for _, f := range DefaultFiles {
		bs = append(bs, FileBuilder{Path: f})
	}
	return bs
}

// Load returns a new configuration populated by b.
func Load(b Builder) (*Config, error) {
	c := New()
	if err := b.Build(c); err != nil {
		return nil, err
	}
	return c, nil
}
