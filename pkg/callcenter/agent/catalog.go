package agent

import (
	"context"
	"fmt"
	"os"
	"sync"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"gopkg.in/yaml.v3"
)

// Catalog looks up agents by identifier.
type Catalog interface {
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
}

// StaticCatalog is an in-memory catalog. Entries are stored and handed out
// as copies.
type StaticCatalog struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string
}

var _ Catalog = (*StaticCatalog)(nil)

// NewStaticCatalog builds a catalog from agents. Agents are not validated
// here; a call validates its agent when it is dialed.
func NewStaticCatalog(agents ...*Agent) (*StaticCatalog, error) {
	c := &StaticCatalog{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		if err := c.Put(a); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultCatalog returns the catalog holding DefaultAgents.
func DefaultCatalog() *StaticCatalog {
	c, err := NewStaticCatalog(DefaultAgents()...)
	if err != nil {
		// built-in ids are unique
		panic(err)
	}
	return c
}

type catalogFile struct {
	Agents []*Agent `yaml:"agents"`
}

// LoadCatalog reads agents from a YAML file of the form "agents: [...]".
func LoadCatalog(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return NewStaticCatalog(file.Agents...)
}

// Put adds an agent. Identifiers must be unique.
func (c *StaticCatalog) Put(a *Agent) error {
	if a == nil || a.ID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidAgentConfig, "catalog entries need an id", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.agents[a.ID]; exists {
		return apperrors.Newf(apperrors.ErrCodeInvalidAgentConfig, "duplicate agent id %q", a.ID)
	}
	c.agents[a.ID] = a.Clone()
	c.order = append(c.order, a.ID)
	return nil
}

func (c *StaticCatalog) GetAgent(ctx context.Context, id string) (*Agent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.agents[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeAgentNotFound, "agent %q not found", id)
	}
	return a.Clone(), nil
}

// ListAgents returns dialer-active agents first, then the rest, each group
// in insertion order.
func (c *StaticCatalog) ListAgents(ctx context.Context) ([]*Agent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	active := make([]*Agent, 0, len(c.order))
	rest := make([]*Agent, 0, len(c.order))
	for _, id := range c.order {
		a := c.agents[id]
		if a.ActiveForDialer {
			active = append(active, a.Clone())
		} else {
			rest = append(rest, a.Clone())
		}
	}
	return append(active, rest...), nil
}
