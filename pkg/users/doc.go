// Package users manages taskboard accounts: self-registration, lookup, and
// the system-admin operations that change a user's system role or
// deactivate them. Users are never deleted.
package users
