// Package storage provides the persistence plumbing shared by the taskboard
// services.
//
// # Overview
//
// Services never hold a *sql.Tx directly. They call Executor with the request
// context and get back whatever the surrounding unit of work is using: the
// ambient transaction when one was opened by a TxManager, or the pool
// otherwise. This keeps the authorization reads in the same snapshot as the
// writes they guard during multi-statement operations such as project
// creation and ownership transfer.
//
//	err := txManager.RunInTx(ctx, func(ctx context.Context) error {
//		if err := projects.insert(ctx, p); err != nil {
//			return err
//		}
//		return members.InsertMembership(ctx, owner)
//	})
//
// # Schema
//
// The schema is versioned in Migrations and kept in two dialects. PostgreSQL
// is the production target; SQLite is used by the in-memory test databases in
// package sqlitetest. Both dialects carry the partial unique indexes that
// back the membership invariants:
//
//   - at most one active membership per (project, user)
//   - at most one active owner membership per project
//
// Queries written against this schema use $N placeholders, pass timestamps
// from Go rather than calling NOW(), and avoid dialect-specific operators so
// the same statement runs on both engines.
package storage
