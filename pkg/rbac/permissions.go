package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

type codeSet map[string]struct{}

func newCodeSet(codes []string) codeSet {
	set := make(codeSet, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

func (s codeSet) sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// PermissionDirectory caches the permission catalog and the codes granted to
// each role. Grant changes made through it rebuild the affected role entry.
// Published maps are never written after the swap; every rebuild copies.
type PermissionDirectory struct {
	source  PermissionSource
	users   UserRoleLookup
	logger  *observability.Logger
	metrics *observability.Metrics

	// writeMu orders rebuilds so a slower query never overwrites a newer one
	writeMu sync.Mutex

	mu     sync.RWMutex
	loaded bool
	byCode map[string]Permission
	byRole map[int64]codeSet

	reloads singleflight.Group
}

// NewPermissionDirectory creates an empty permission directory. metrics may
// be nil.
func NewPermissionDirectory(source PermissionSource, users UserRoleLookup, logger *observability.Logger, metrics *observability.Metrics) *PermissionDirectory {
	return &PermissionDirectory{
		source:  source,
		users:   users,
		logger:  logger.WithField("directory", "permissions"),
		metrics: metrics,
		byCode:  map[string]Permission{},
		byRole:  map[int64]codeSet{},
	}
}

// Reload rebuilds both maps. Concurrent callers share one query. On failure
// the previous contents are kept.
func (d *PermissionDirectory) Reload(ctx context.Context) error {
	_, err, _ := d.reloads.Do("permissions", func() (interface{}, error) {
		return nil, d.rebuild(ctx)
	})
	return err
}

func (d *PermissionDirectory) rebuild(ctx context.Context) (err error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	ctx, span := observability.StartSpan(ctx, "rbac.permissions.reload")
	start := time.Now()
	entries := 0
	defer func() {
		d.metrics.RecordDirectoryReload("permissions", time.Since(start), entries, err)
		observability.EndSpan(span, err)
	}()

	permissions, err := d.source.ActivePermissions(ctx)
	if err != nil {
		d.logger.WithError(err).Error("Failed to load permissions")
		return err
	}
	grants, err := d.source.RoleGrants(ctx)
	if err != nil {
		d.logger.WithError(err).Error("Failed to load role permissions")
		return err
	}

	byCode := make(map[string]Permission, len(permissions))
	for _, p := range permissions {
		byCode[p.Code] = p
	}
	byRole := make(map[int64]codeSet, len(grants))
	for roleID, codes := range grants {
		byRole[roleID] = newCodeSet(codes)
	}
	entries = len(byCode)
	roles := len(byRole)
	span.SetAttributes(attribute.Int("rbac.permissions", entries), attribute.Int("rbac.roles", roles))

	d.mu.Lock()
	d.byCode = byCode
	d.byRole = byRole
	d.loaded = true
	d.mu.Unlock()

	d.logger.Infof("Loaded %d permissions for %d roles", entries, roles)
	return nil
}

// snapshot returns the published maps. Callers must not modify them.
func (d *PermissionDirectory) snapshot() (bool, map[string]Permission, map[int64]codeSet) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded, d.byCode, d.byRole
}

// fillIfCold runs a full reload when the directory has never loaded and
// reports whether it succeeded
func (d *PermissionDirectory) fillIfCold(ctx context.Context, loaded bool) bool {
	if loaded {
		return false
	}
	return d.Reload(ctx) == nil
}

// Permission returns the active permission with code. A miss loads it from
// the source and caches it; an unknown code is storage.ErrNotFound.
func (d *PermissionDirectory) Permission(ctx context.Context, code string) (Permission, error) {
	loaded, byCode, _ := d.snapshot()
	if p, ok := byCode[code]; ok {
		return p, nil
	}
	if d.fillIfCold(ctx, loaded) {
		_, byCode, _ = d.snapshot()
		if p, ok := byCode[code]; ok {
			return p, nil
		}
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	p, err := d.source.PermissionByCode(ctx, code)
	if err != nil {
		return Permission{}, err
	}
	d.mu.Lock()
	next := make(map[string]Permission, len(d.byCode)+1)
	for c, existing := range d.byCode {
		next[c] = existing
	}
	next[code] = p
	d.byCode = next
	d.mu.Unlock()
	return p, nil
}

// roleCodes returns the cached set for roleID. A miss on a cold directory
// tries a full reload first, then falls back to loading the one role. A
// missing role yields an empty set that is not cached.
func (d *PermissionDirectory) roleCodes(ctx context.Context, roleID int64) (codeSet, error) {
	loaded, _, byRole := d.snapshot()
	if set, ok := byRole[roleID]; ok {
		return set, nil
	}
	if d.fillIfCold(ctx, loaded) {
		_, _, byRole = d.snapshot()
		if set, ok := byRole[roleID]; ok {
			return set, nil
		}
	}
	return d.refreshRole(ctx, roleID)
}

// refreshRole reloads one role's entry from the source and publishes a copy
// of the role map carrying it
func (d *PermissionDirectory) refreshRole(ctx context.Context, roleID int64) (codeSet, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	codes, err := d.source.RoleGrantCodes(ctx, roleID)
	missing := errors.Is(err, storage.ErrNotFound)
	if err != nil && !missing {
		return nil, fmt.Errorf("failed to load permissions for role %d: %w", roleID, err)
	}

	set := codeSet{}
	if !missing {
		set = newCodeSet(codes)
	}

	d.mu.Lock()
	next := make(map[int64]codeSet, len(d.byRole)+1)
	for id, existing := range d.byRole {
		next[id] = existing
	}
	if missing {
		delete(next, roleID)
	} else {
		next[roleID] = set
	}
	d.byRole = next
	d.mu.Unlock()
	return set, nil
}

// PermissionsForRole returns the sorted codes granted to roleID
func (d *PermissionDirectory) PermissionsForRole(ctx context.Context, roleID int64) ([]string, error) {
	set, err := d.roleCodes(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return set.sorted(), nil
}

func (d *PermissionDirectory) userCodes(ctx context.Context, userID int64) (codeSet, error) {
	roleID, err := d.users.UserRoleID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && roleID == 0) {
		return codeSet{}, nil
	}
	if err != nil {
		return nil, err
	}
	return d.roleCodes(ctx, roleID)
}

// UserPermissionCodes returns the sorted codes a user holds through their
// role. Missing or soft-deleted users hold nothing.
func (d *PermissionDirectory) UserPermissionCodes(ctx context.Context, userID int64) ([]string, error) {
	set, err := d.userCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return set.sorted(), nil
}

// UserHasPermission reports whether the user holds code
func (d *PermissionDirectory) UserHasPermission(ctx context.Context, userID int64, code string) (bool, error) {
	return d.UserHasAny(ctx, userID, code)
}

// UserHasAny reports whether the user holds at least one of codes
func (d *PermissionDirectory) UserHasAny(ctx context.Context, userID int64, codes ...string) (bool, error) {
	set, err := d.userCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range codes {
		if _, ok := set[c]; ok {
			return true, nil
		}
	}
	return false, nil
}

// UserHasAll reports whether the user holds every one of codes. An empty
// list is always held.
func (d *PermissionDirectory) UserHasAll(ctx context.Context, userID int64, codes ...string) (bool, error) {
	set, err := d.userCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range codes {
		if _, ok := set[c]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// AssignPermissions replaces the grants of roleID with permissionIDs and
// rebuilds its entry. It returns storage.ErrNotFound for a missing role.
func (d *PermissionDirectory) AssignPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := d.source.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	_, err := d.refreshRole(ctx, roleID)
	return err
}

// RemovePermissions revokes permissionIDs from roleID and rebuilds its entry
func (d *PermissionDirectory) RemovePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := d.source.RemoveRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	_, err := d.refreshRole(ctx, roleID)
	return err
}

// Ready is a health probe that fails until the first successful reload
func (d *PermissionDirectory) Ready(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.loaded {
		return ErrDirectoryNotLoaded
	}
	return nil
}
