// Package rbac implements role and permission lookups for the access gate.
//
// Two caches back every check. RoleDirectory maps active role names to ids
// and reloads itself once on a lookup miss. PermissionDirectory holds the
// permission catalog and the codes granted to each role; AssignPermissions
// and RemovePermissions write through the Store and rebuild the affected
// role. Neither cache expires on its own.
//
//	store := rbac.NewStore(db)
//	roles := rbac.NewRoleDirectory(store, logger, metrics)
//	permissions := rbac.NewPermissionDirectory(store, store, logger, metrics)
//
//	router.Handle("/api/employees", gate.ProtectFunc(h.List,
//		rbac.RequirePermission(permissions, "view_all_employees", "view_team_employees"),
//	))
//	router.Handle("/api/users", gate.ProtectFunc(h.Create,
//		rbac.RequireRole(roles, rbac.RoleName(rbac.RoleUserAdmin), rbac.RoleName(rbac.RoleHRAdmin)),
//	))
//
// RequirePermission passes when the caller holds any one of the codes.
//
// The embedded catalog.yaml defines the built-in roles, the permission
// codes and the default grants. Seed applies it additively.
package rbac
