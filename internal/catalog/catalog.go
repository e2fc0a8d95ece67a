// Package catalog stores reusable promise templates: a promise type plus a
// set of default parameters. Templates are immutable once created except for
// the active flag, and are never deleted — only deactivated.
package catalog

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrUnauthorized = errors.New("UNAUTHORIZED: admin capability required")
	ErrNotFound     = errors.New("NOT_FOUND: template does not exist")
)

// Known promise type tags. The catalog does not enforce the set — evaluators
// decide what they can score — but the builtins cover exactly these.
const (
	TypeExerciseFrequency   = "exercise_frequency"
	TypeExerciseDuration    = "exercise_duration"
	TypeExerciseConsistency = "exercise_consistency"
	TypeActiveZoneMinutes   = "active_zone_minutes"
)

// Template is a reusable promise definition.
type Template struct {
	ID            uint64            `json:"id"`
	Name          string            `json:"name"`
	PromiseType   string            `json:"promise_type"`
	DefaultParams map[string]string `json:"default_params"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"created_at"`
}

// AdminToken is the capability required for privileged catalog operations.
// It is issued exactly once by NewCatalog; the zero value never authorizes.
type AdminToken struct {
	key string
}

// Catalog owns all templates. Template ids are assigned monotonically.
type Catalog struct {
	mu        sync.RWMutex
	templates map[uint64]*Template
	nextID    uint64
	adminKey  string
}

// NewCatalog creates an empty catalog and returns the single admin token.
func NewCatalog() (*Catalog, AdminToken) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("catalog: cannot generate admin key: %v", err))
	}
	key := hex.EncodeToString(buf)

	return &Catalog{
		templates: make(map[uint64]*Template),
		nextID:    1,
		adminKey:  key,
	}, AdminToken{key: key}
}

func (c *Catalog) authorize(tok AdminToken) error {
	if tok.key == "" || tok.key != c.adminKey {
		return ErrUnauthorized
	}
	return nil
}

// CreateTemplate registers a new template and returns its id. Admin only.
func (c *Catalog) CreateTemplate(tok AdminToken, name, promiseType string, defaults map[string]string) (uint64, error) {
	if err := c.authorize(tok); err != nil {
		return 0, err
	}
	if name == "" || promiseType == "" {
		return 0, fmt.Errorf("template name and promise type are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	params := make(map[string]string, len(defaults))
	for k, v := range defaults {
		params[k] = v
	}

	c.templates[id] = &Template{
		ID:            id,
		Name:          name,
		PromiseType:   promiseType,
		DefaultParams: params,
		Active:        true,
		CreatedAt:     time.Now(),
	}
	return id, nil
}

// Deactivate retires a template. Admin only, idempotent.
func (c *Catalog) Deactivate(tok AdminToken, id uint64) error {
	if err := c.authorize(tok); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.templates[id]
	if !ok {
		return fmt.Errorf("%w: template %d", ErrNotFound, id)
	}
	t.Active = false
	return nil
}

// Get returns a copy of a template.
func (c *Catalog) Get(id uint64) (Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: template %d", ErrNotFound, id)
	}
	return t.copy(), nil
}

// List returns copies of all templates, active and retired.
func (c *Catalog) List() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Template, 0, len(c.templates))
	for id := uint64(1); id < c.nextID; id++ {
		if t, ok := c.templates[id]; ok {
			out = append(out, t.copy())
		}
	}
	return out
}

func (t *Template) copy() Template {
	params := make(map[string]string, len(t.DefaultParams))
	for k, v := range t.DefaultParams {
		params[k] = v
	}
	c := *t
	c.DefaultParams = params
	return c
}
