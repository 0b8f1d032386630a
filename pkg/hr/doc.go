// Package hr manages the HR master data: departments, positions and
// employees. Every entity is organization scoped and soft deleted.
//
// Department names are unique case-insensitively within an organization,
// position titles within an organization and department, and employee
// emails across all live employees. Employees created without a code get
// the next EMPnnn code of their organization.
//
// Reading one employee follows a carve-out: the account bound to the
// employee may always read it, its reporting manager may read it within the
// same organization, and everyone else needs view_all_employees.
package hr
