package rbac

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogRole is a built-in role with a fixed id
type CatalogRole struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// CatalogPermission is one permission definition
type CatalogPermission struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

// Catalog is the seed data for roles, permissions and default grants.
// Grants are keyed by role name.
type Catalog struct {
	Roles       []CatalogRole       `yaml:"roles"`
	Permissions []CatalogPermission `yaml:"permissions"`
	Grants      map[string][]string `yaml:"grants"`
}

// DefaultCatalog returns the embedded catalog
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads the catalog at path, or the embedded one when path is
// empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that ids, names and codes are unique and that every grant
// names a known role and permission
func (c *Catalog) Validate() error {
	roleNames := make(map[string]bool, len(c.Roles))
	roleIDs := make(map[int64]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.ID <= 0 || r.Name == "" {
			return fmt.Errorf("catalog role %q needs a positive id and a name", r.Name)
		}
		if roleNames[r.Name] || roleIDs[r.ID] {
			return fmt.Errorf("catalog role %q (id %d) is defined twice", r.Name, r.ID)
		}
		roleNames[r.Name] = true
		roleIDs[r.ID] = true
	}

	codes := make(map[string]bool, len(c.Permissions))
	for _, p := range c.Permissions {
		if p.Code == "" || p.Name == "" {
			return fmt.Errorf("catalog permission %q needs a code and a name", p.Code)
		}
		if codes[p.Code] {
			return fmt.Errorf("catalog permission %q is defined twice", p.Code)
		}
		codes[p.Code] = true
	}

	for role, granted := range c.Grants {
		if !roleNames[role] {
			return fmt.Errorf("catalog grants reference unknown role %q", role)
		}
		for _, code := range granted {
			if !codes[code] {
				return fmt.Errorf("catalog grants for %q reference unknown permission %q", role, code)
			}
		}
	}
	return nil
}

// SeedResult counts what a seed run changed
type SeedResult struct {
	Roles       int
	Permissions int
	Grants      int
}

// Seed upserts the catalog. It is additive and idempotent: running it twice
// inserts no new grants the second time, and grants made by administrators
// are never removed.
func Seed(ctx context.Context, store *Store, catalog *Catalog, dialect storage.Dialect) (SeedResult, error) {
	var result SeedResult

	roleIDs := make(map[string]int64, len(catalog.Roles))
	for _, r := range catalog.Roles {
		if err := store.UpsertRole(ctx, r.ID, r.Name, r.Description); err != nil {
			return result, err
		}
		roleIDs[r.Name] = r.ID
		result.Roles++
	}
	if err := storage.SyncSequence(ctx, store.db, dialect, "roles"); err != nil {
		return result, err
	}

	permissionIDs := make(map[string]int64, len(catalog.Permissions))
	for _, p := range catalog.Permissions {
		id, err := store.UpsertPermission(ctx, Permission{
			Code:        p.Code,
			Name:        p.Name,
			Category:    p.Category,
			Description: p.Description,
		})
		if err != nil {
			return result, err
		}
		permissionIDs[p.Code] = id
		result.Permissions++
	}

	for _, r := range catalog.Roles {
		for _, code := range catalog.Grants[r.Name] {
			added, err := store.GrantPermission(ctx, roleIDs[r.Name], permissionIDs[code])
			if err != nil {
				return result, err
			}
			if added {
				result.Grants++
			}
		}
	}
	return result, nil
}
