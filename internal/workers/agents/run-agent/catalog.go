// internal/workers/agents/run-agent/catalog.go
package runagent

import (
	"sync"
	"time"

	"textagents/internal/agent"
	"textagents/internal/common/cache"
	"textagents/internal/common/errors"
	"textagents/pkg/registry"
)

// Catalog loads registered agents on first use and keeps them for the life of
// the process.
type Catalog struct {
	registry     *registry.AgentRegistry
	registryPath string
	opts         []agent.Option

	mu         sync.Mutex
	agents     map[string]*agent.Agent
	cache      cache.ResultCache
	cacheOpt   agent.Option
	closeCache func() error
}

// NewCatalog serves the enabled entries of reg. Entry files resolve against
// registryPath's directory; opts apply to every agent.
func NewCatalog(reg *registry.AgentRegistry, registryPath string, opts ...agent.Option) *Catalog {
	return &Catalog{
		registry:     reg,
		registryPath: registryPath,
		opts:         opts,
		agents:       map[string]*agent.Agent{},
	}
}

// Get returns the agent registered under id.
func (c *Catalog) Get(id string) (*agent.Agent, error) {
	entry, ok := c.registry.Find(id)
	if !ok || !entry.Enabled {
		return nil, errors.NewAgentNotFoundError(id)
	}
	return c.load(entry)
}

// ForTaskType returns the agent bound to a job task type.
func (c *Catalog) ForTaskType(taskType string) (*agent.Agent, error) {
	entry, ok := c.registry.ByTaskType(taskType)
	if !ok || !entry.Enabled {
		return nil, errors.NewAgentNotFoundError(taskType)
	}
	return c.load(entry)
}

// Preload loads every enabled agent so definition errors surface at startup.
func (c *Catalog) Preload() error {
	for _, e := range c.registry.Enabled() {
		entry := e
		if _, err := c.load(&entry); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every loaded agent and the shared result cache.
func (c *Catalog) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.agents {
		_ = a.Close()
	}
	if c.closeCache != nil {
		_ = c.closeCache()
		c.closeCache = nil
	}
}

func (c *Catalog) load(entry *registry.AgentEntry) (*agent.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.agents[entry.ID]; ok {
		return a, nil
	}

	// every agent shares one result cache and so one redis pool
	if c.cache == nil {
		var ttl time.Duration
		c.cache, ttl, c.closeCache = agent.OpenCache(c.opts...)
		c.cacheOpt = agent.WithCache(c.cache, ttl)
	}

	opts := append([]agent.Option(nil), c.opts...)
	opts = append(opts, c.cacheOpt)
	if entry.Model != "" {
		opts = append(opts, agent.WithModelOverride(entry.Model))
	}
	if d := entry.TimeoutDuration(); d > 0 {
		opts = append(opts, agent.WithTimeout(d))
	}

	a, err := agent.Load(entry.ResolveFile(c.registryPath), opts...)
	if err != nil {
		return nil, err
	}
	c.agents[entry.ID] = a
	return a, nil
}
