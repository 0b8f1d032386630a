// Package users stores login accounts and serves their management routes.
//
// The Store is the auth.UserFinder consulted at login. Account management is
// limited to the User Admin and HR Admin roles and follows the same
// organization scoping as the HR entities. Passwords are stored as bcrypt
// hashes and never serialized.
package users
