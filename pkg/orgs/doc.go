// Package orgs provides organization management and the organization
// scoping rule shared by every org-owned resource.
//
// # Scoping
//
// Employees, departments, positions and users carry an optional org id. A
// caller may touch a resource unless both sides carry an org id and the ids
// differ:
//
//	orgs.IsOrgAccessible(nil, nil)                 // true
//	orgs.IsOrgAccessible(ptr(5), nil)              // true
//	orgs.IsOrgAccessible(nil, ptr(5))              // true
//	orgs.IsOrgAccessible(ptr(5), ptr(7))           // false
//
// Handlers load the resource first, answering 404 for a missing row, and
// only then call CheckAccess so a foreign resource answers 403.
//
// # Organizations
//
// Organization CRUD is restricted to the User Admin role. Codes are unique
// case-insensitively among live organizations and deletes are soft.
//
//	svc := orgs.NewSQLService(db)
//	org, err := svc.CreateOrganization(ctx, &orgs.CreateOrgRequest{Name: "Acme", Code: "ACME"}, callerID)
package orgs
