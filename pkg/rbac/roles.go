package rbac

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/scorecard/pkg/observability"
)

// ErrDirectoryNotLoaded is reported by Ready before the first successful load
var ErrDirectoryNotLoaded = errors.New("directory not loaded")

// Lookup misses that survive a successful reload are remembered for
// roleMissTTL so an unknown name or id does not query on every request
const (
	roleMissTTL   = 5 * time.Second
	roleMissLimit = 1024
)

// RoleDirectory caches the role name to id mapping of active roles. It is
// filled once and refilled only on ForceReload or a lookup miss.
type RoleDirectory struct {
	source  RoleSource
	logger  *observability.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	loaded bool
	byName map[string]int64
	byID   map[int64]string

	reloads singleflight.Group
	misses  *lru.LRU[string, struct{}]
}

// NewRoleDirectory creates an empty role directory. metrics may be nil.
func NewRoleDirectory(source RoleSource, logger *observability.Logger, metrics *observability.Metrics) *RoleDirectory {
	return &RoleDirectory{
		source:  source,
		logger:  logger.WithField("directory", "roles"),
		metrics: metrics,
		byName:  map[string]int64{},
		byID:    map[int64]string{},
		misses:  lru.NewLRU[string, struct{}](roleMissLimit, nil, roleMissTTL),
	}
}

// Load fills the directory unless it is already loaded
func (d *RoleDirectory) Load(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.loaded
	d.mu.RUnlock()
	if loaded {
		return nil
	}
	return d.reload(ctx)
}

// ForceReload refills the directory from the source and forgets remembered
// misses. Concurrent callers share one query. On failure the previous
// contents are kept.
func (d *RoleDirectory) ForceReload(ctx context.Context) error {
	d.misses.Purge()
	return d.reload(ctx)
}

func (d *RoleDirectory) reload(ctx context.Context) error {
	_, err, _ := d.reloads.Do("roles", func() (interface{}, error) {
		return nil, d.rebuild(ctx)
	})
	return err
}

func (d *RoleDirectory) rebuild(ctx context.Context) (err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.roles.reload")
	start := time.Now()
	entries := 0
	defer func() {
		d.metrics.RecordDirectoryReload("roles", time.Since(start), entries, err)
		observability.EndSpan(span, err)
	}()

	roles, err := d.source.ActiveRoles(ctx)
	if err != nil {
		d.logger.WithError(err).Error("Failed to load roles")
		return err
	}

	byName := make(map[string]int64, len(roles))
	byID := make(map[int64]string, len(roles))
	for _, role := range roles {
		byName[role.Name] = role.ID
		byID[role.ID] = role.Name
	}
	entries = len(roles)
	span.SetAttributes(attribute.Int("rbac.roles", entries))

	d.mu.Lock()
	d.byName = byName
	d.byID = byID
	d.loaded = true
	d.mu.Unlock()

	d.logger.Infof("Loaded %d roles", entries)
	return nil
}

// lookupOrReload runs lookup and, on a miss, reloads once and retries. A
// key still missing after a successful reload is not retried until it
// expires from the miss cache.
func (d *RoleDirectory) lookupOrReload(ctx context.Context, key string, lookup func() bool) bool {
	if lookup() {
		return true
	}
	if d.misses.Contains(key) {
		return false
	}
	if err := d.reload(ctx); err != nil {
		return false
	}
	if lookup() {
		return true
	}
	d.misses.Add(key, struct{}{})
	return false
}

// IDByName returns the id of the active role called name. A miss reloads
// the directory once.
func (d *RoleDirectory) IDByName(ctx context.Context, name string) (int64, bool) {
	var id int64
	ok := d.lookupOrReload(ctx, "name:"+name, func() bool {
		d.mu.RLock()
		defer d.mu.RUnlock()
		var found bool
		id, found = d.byName[name]
		return found
	})
	return id, ok
}

// NameByID returns the name of the active role with id. A miss reloads the
// directory once.
func (d *RoleDirectory) NameByID(ctx context.Context, id int64) (string, bool) {
	var name string
	ok := d.lookupOrReload(ctx, "id:"+strconv.FormatInt(id, 10), func() bool {
		d.mu.RLock()
		defer d.mu.RUnlock()
		var found bool
		name, found = d.byID[id]
		return found
	})
	return name, ok
}

// Names returns the cached role names in ascending order
func (d *RoleDirectory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ready is a health probe that fails until the first successful load
func (d *RoleDirectory) Ready(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.loaded {
		return ErrDirectoryNotLoaded
	}
	return nil
}
