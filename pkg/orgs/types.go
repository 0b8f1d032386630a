package orgs

import (
	"context"
	"time"
)

// Organization is a tenant owning employees, departments, positions and
// users
type Organization struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Code        string     `json:"code"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// CreateOrgRequest represents request to create an organization
type CreateOrgRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// UpdateOrgRequest represents request to update an organization. Nil
// fields are left unchanged.
type UpdateOrgRequest struct {
	Name        *string `json:"name,omitempty"`
	Code        *string `json:"code,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// Service defines the interface for organization management. Lookups of
// missing or deleted organizations return storage.ErrNotFound.
type Service interface {
	CreateOrganization(ctx context.Context, req *CreateOrgRequest, createdBy int64) (*Organization, error)
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationByCode(ctx context.Context, code string) (*Organization, error)
	ListOrganizations(ctx context.Context, includeInactive bool) ([]*Organization, error)
	UpdateOrganization(ctx context.Context, id int64, req *UpdateOrgRequest) (*Organization, error)
	DeleteOrganization(ctx context.Context, id int64) error
}
