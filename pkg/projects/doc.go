// Package projects stores projects and tasks and exposes them through the
// rbac gate. Every read is filtered by the caller's visibility predicate;
// aggregates such as ProjectStats are computed over visible rows only.
//
// Creating a project also creates its OWNER membership in the same
// transaction, so a project is never observed without an owner row.
package projects
