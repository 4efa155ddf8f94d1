package agent

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	ctxengine "github.com/voidKandy/espionox-sub001/internal/context"
	"github.com/voidKandy/espionox-sub001/internal/memory"
)

// Config is the YAML shape of one entry under "agents:".
type Config struct {
	Provider     string        `yaml:"provider"`
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      string        `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	Memory       MemoryConfig  `yaml:"memory"`
	Caching      CachingConfig `yaml:"caching"`
}

// MemoryConfig selects the backend mode and its collaborators.
type MemoryConfig struct {
	Mode       string `yaml:"mode"`
	Thread     string `yaml:"thread"`
	Store      string `yaml:"store"`
	Embedder   string `yaml:"embedder"`
	Summarizer string `yaml:"summarizer"`
	ChunkSize  int    `yaml:"chunk_size"`
}

// CachingConfig selects the caching mechanism.
type CachingConfig struct {
	Mechanism string `yaml:"mechanism"`
	Limit     int    `yaml:"limit"`
	Persist   bool   `yaml:"persist"`
}

// ParseConfigs decodes the raw "agents:" nodes. Names are returned sorted.
func ParseConfigs(nodes map[string]yaml.Node) (map[string]Config, []string, error) {
	out := make(map[string]Config, len(nodes))
	names := make([]string, 0, len(nodes))
	for name, node := range nodes {
		var cfg Config
		if err := node.Decode(&cfg); err != nil {
			return nil, nil, fmt.Errorf("agent: parsing %q: %w", name, err)
		}
		out[name] = cfg.withDefaults()
		names = append(names, name)
	}
	slices.Sort(names)
	return out, names, nil
}

// withDefaults fills empty fields.
func (c Config) withDefaults() Config {
	if c.Caching.Mechanism == "" {
		c.Caching.Mechanism = DefaultMechanism
	}
	if c.Caching.Limit == 0 && c.Caching.Mechanism != "forgetful" {
		c.Caching.Limit = DefaultLimit
	}
	if c.Memory.Summarizer == "" {
		c.Memory.Summarizer = c.Provider
	}
	if c.Memory.Mode == "" {
		c.Memory.Mode = "cache"
	}
	return c
}

// TimeoutDuration parses Timeout. Empty means DefaultTimeout.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", d)
	}
	return d, nil
}

// Mechanism parses the caching section.
func (c Config) Mechanism() (ctxengine.Mechanism, error) {
	return ctxengine.MechanismFromConfig(c.Caching.Mechanism, c.Caching.Limit, c.Caching.Persist)
}

// Mode parses the memory section.
func (c Config) Mode() (memory.Mode, error) {
	return memory.ParseMode(c.Memory.Mode, c.Memory.Thread)
}

// Validate checks the configuration of agent name. known reports whether a
// module ID is configured; it is consulted for every referenced module.
func (c Config) Validate(name string, known func(id string) bool) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("agent %q: "+format, append([]any{name}, args...)...))
	}

	if c.Provider == "" {
		fail("provider is required")
	}
	if c.Retries < 0 {
		fail("retries must not be negative")
	}
	if _, err := c.TimeoutDuration(); err != nil {
		fail("%v", err)
	}

	mode, err := c.Mode()
	if err != nil {
		fail("%v", err)
	}
	mech, err := c.Mechanism()
	if err != nil {
		fail("%v", err)
	}

	if mode.IsLongTerm() && c.Memory.Store == "" {
		fail("long_term mode requires memory.store")
	}
	if !mode.IsLongTerm() && c.Memory.Thread != "" {
		fail("memory.thread is only valid in long_term mode")
	}
	if mech.Persist() {
		if c.Memory.Store == "" {
			fail("caching.persist requires memory.store")
		}
		if c.Memory.Embedder == "" {
			fail("caching.persist requires memory.embedder")
		}
	}
	if c.Memory.ChunkSize < 0 {
		fail("memory.chunk_size must not be negative")
	}

	if known != nil {
		refs := []struct{ field, id string }{
			{"provider", c.Provider},
			{"memory.store", c.Memory.Store},
			{"memory.embedder", c.Memory.Embedder},
			{"memory.summarizer", c.Memory.Summarizer},
		}
		for _, r := range refs {
			if r.id != "" && !known(r.id) {
				fail("%s references unconfigured module %q", r.field, r.id)
			}
		}
	}
	return errors.Join(errs...)
}
