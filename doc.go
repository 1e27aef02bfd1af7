// Package dal is a thin access layer over database/sql for PostgreSQL.
//
// A Session owns a connection pool and is the single entry point for
// statements. Six verbs cover the usual shapes of work: Exec, Insert,
// QueryRow, QueryRows, Update and Delete. Each takes a Statement, which is
// command text plus positional values ($1, $2, ...), optionally bound to a
// Tx.
//
//	s := dal.New(cfg.Database, dal.WithLogger(log))
//	if err := s.Connect(ctx); err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	res, err := s.Insert(ctx, dal.Stmt(`INSERT INTO brands (brand_name) VALUES ($1) RETURNING id`, "Ford"))
//
// Transactions are explicit. StartTransaction checks a connection out of
// the pool and pins it; every statement passed that Tx runs on the pinned
// connection until Commit or Rollback releases it. A failed statement does
// not roll back on its own:
//
//	tx, err := s.StartTransaction(ctx)
//	if err != nil {
//	    return err
//	}
//	if _, err := s.Insert(ctx, dal.Stmt(q, v...).In(tx)); err != nil {
//	    _ = s.Rollback(ctx, tx)
//	    return err
//	}
//	return s.Commit(ctx, tx)
//
// Delete honours soft deletion. When enabled for the session or the call,
// DELETE FROM t WHERE p is rewritten to UPDATE t SET deleted_at = now WHERE p
// and reported with the same DeleteResult. Reads are never filtered; add
// "deleted_at IS NULL" to queries that should skip deleted rows.
package dal
