// Package detail drives the two-mode detail screen of one accident: viewing
// the accident with its registry history, and registering a new entry.
package detail

import (
	"context"
	"log/slog"
	"sync"

	accidentmodels "safetyaudit/internal/accident/models"
	"safetyaudit/internal/registry/cache"
	"safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/requestcontext"
)

type Mode string

const (
	ModeView     Mode = "view"
	ModeRegister Mode = "register"
)

func (m Mode) IsValid() bool {
	return m == ModeView || m == ModeRegister
}

// Registry is the slice of the registry engine the controller needs.
type Registry interface {
	Name() string
	Create(ctx context.Context, ownerID id.OwnerID, req models.CreateEntryRequest) (*models.Entry, error)
	GetRegistriesByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) ([]*models.Entry, error)
	GetStatsByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) (models.Stats, error)
}

// ParentLookup returns nil, nil when the parent does not exist.
type ParentLookup interface {
	GetByID(ctx context.Context, ownerID id.OwnerID, entityID string) (*accidentmodels.Accident, error)
}

// memo holds one query result and the refresh key it was loaded under.
type memo[T any] struct {
	key    uint64
	loaded bool
	value  T
}

func (m *memo[T]) get(key uint64) (T, bool) {
	if m.loaded && m.key == key {
		return m.value, true
	}
	var zero T
	return zero, false
}

func (m *memo[T]) set(key uint64, v T) {
	m.key, m.loaded, m.value = key, true, v
}

// Controller is bound to one owner and one parent entity. Stats and entries
// are memoized per refresh key; the key only moves forward, on every
// successful save or external write notification.
type Controller struct {
	registry Registry
	parents  ParentLookup
	stats    cache.StatsCache
	logger   *slog.Logger
	onSaved  func(ctx context.Context, entryID id.EntryID)

	ownerID  id.OwnerID
	entityID string

	mu         sync.Mutex
	mode       Mode
	opened     bool
	saving     bool
	refreshKey uint64
	parent     *accidentmodels.Accident
	statsMemo  memo[models.Stats]
	entries    memo[[]*models.Entry]
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithStatsCache shares computed stats across controllers and processes.
func WithStatsCache(sc cache.StatsCache) Option {
	return func(c *Controller) {
		c.stats = sc
	}
}

// WithOnSaved is called with the new entry id after each successful save.
func WithOnSaved(fn func(ctx context.Context, entryID id.EntryID)) Option {
	return func(c *Controller) {
		c.onSaved = fn
	}
}

func NewController(registry Registry, parents ParentLookup, ownerID id.OwnerID, entityID string, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		parents:  parents,
		logger:   slog.Default(),
		ownerID:  ownerID,
		entityID: entityID,
		mode:     ModeView,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads the parent and enters the given mode. Opening is allowed from
// either mode; a pending registration is abandoned without persisting.
func (c *Controller) Open(ctx context.Context, mode Mode) error {
	if !mode.IsValid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown mode %q", mode)
	}
	parent, err := c.loadParent(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.parent = parent
	c.mode = mode
	c.opened = true
	return nil
}

// Load reloads the parent and leaves the mode alone, so viewing never
// abandons a registration. A controller opened for the first time starts in
// view mode.
func (c *Controller) Load(ctx context.Context) error {
	parent, err := c.loadParent(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.parent = parent
	c.opened = true
	return nil
}

func (c *Controller) loadParent(ctx context.Context) (*accidentmodels.Accident, error) {
	if c.ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner id is required")
	}
	parent, err := c.parents.GetByID(ctx, c.ownerID, c.entityID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "accident not found")
	}
	return parent, nil
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) RefreshKey() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshKey
}

func (c *Controller) Parent() *accidentmodels.Accident {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent
}

// Stats returns the aggregates for the current refresh key, querying only
// when the key moved since the last load.
func (c *Controller) Stats(ctx context.Context) (models.Stats, error) {
	key := c.RefreshKey()
	c.mu.Lock()
	if v, ok := c.statsMemo.get(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	stats, err := cache.ReadThrough(ctx, c.stats, c.logger, c.cacheKey(), func(ctx context.Context) (models.Stats, error) {
		return c.registry.GetStatsByEntity(ctx, c.ownerID, c.entityID)
	})
	if err != nil {
		return models.Stats{}, err
	}
	c.mu.Lock()
	c.statsMemo.set(key, stats)
	c.mu.Unlock()
	return stats, nil
}

// Entries returns the registry history for the current refresh key.
func (c *Controller) Entries(ctx context.Context) ([]*models.Entry, error) {
	key := c.RefreshKey()
	c.mu.Lock()
	if v, ok := c.entries.get(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	entries, err := c.registry.GetRegistriesByEntity(ctx, c.ownerID, c.entityID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries.set(key, entries)
	c.mu.Unlock()
	return entries, nil
}

// BeginRegister switches an opened controller to register mode.
func (c *Controller) BeginRegister() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return dErrors.New(dErrors.CodeConflict, "detail view is not open")
	}
	c.mode = ModeRegister
	return nil
}

// Cancel leaves register mode. Nothing is persisted.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeView
}

// Save creates the entry under the controller's parent. On success the
// controller returns to view mode, advances the refresh key and reports the
// new id. On failure mode and key are unchanged. Only one save runs at a
// time; a concurrent one is a conflict.
func (c *Controller) Save(ctx context.Context, req models.CreateEntryRequest) (*models.Entry, error) {
	c.mu.Lock()
	if c.mode != ModeRegister {
		c.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "not in register mode")
	}
	if c.saving {
		c.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "a save is already in progress")
	}
	c.saving = true
	c.mu.Unlock()

	req.ParentID = c.entityID
	entry, err := c.registry.Create(ctx, c.ownerID, req)

	c.mu.Lock()
	c.saving = false
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mode = ModeView
	c.refreshKey++
	key := c.refreshKey
	c.mu.Unlock()

	c.invalidateCache(ctx)
	c.logger.InfoContext(ctx, "registry entry saved from detail view",
		"entry_id", entry.ID.String(),
		"parent_id", c.entityID,
		"refresh_key", key,
		"request_id", requestcontext.RequestID(ctx),
	)
	if c.onSaved != nil {
		c.onSaved(ctx, entry.ID)
	}
	return entry, nil
}

// Refresh advances the key after a write made elsewhere.
func (c *Controller) Refresh(ctx context.Context) uint64 {
	c.mu.Lock()
	c.refreshKey++
	key := c.refreshKey
	c.mu.Unlock()
	c.invalidateCache(ctx)
	return key
}

// AdvanceTo raises the refresh key to at least key. Keys never move back.
func (c *Controller) AdvanceTo(key uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key > c.refreshKey {
		c.refreshKey = key
	}
	return c.refreshKey
}

func (c *Controller) cacheKey() cache.Key {
	return cache.Key{OwnerID: c.ownerID, Registry: c.registry.Name(), ParentID: c.entityID}
}

func (c *Controller) invalidateCache(ctx context.Context) {
	if c.stats == nil {
		return
	}
	if err := c.stats.Invalidate(ctx, c.cacheKey()); err != nil {
		c.logger.WarnContext(ctx, "stats cache invalidation failed", "key", c.cacheKey().String(), "error", err)
	}
}
