package database

import (
	"database/sql"
	"sync"
)

// StmtCache caches prepared sql statements, keyed by the query string.
// sqlite re-prepares are cheap but not free, and the sync loops hit the
// same handful of queries on every tick.
type StmtCache struct {
	db *sql.DB
	m  sync.Map // query string -> *sql.Stmt
}

func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{db: db}
}

func (sc *StmtCache) Prepare(query string) (*sql.Stmt, error) {
	if cached, ok := sc.m.Load(query); ok {
		return cached.(*sql.Stmt), nil
	}

	stmt, err := sc.db.Prepare(query)
	if err != nil {
		return nil, err
	}

	// Another goroutine may have prepared the same query meanwhile;
	// keep the stored one and close ours.
	if actual, loaded := sc.m.LoadOrStore(query, stmt); loaded {
		_ = stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Clear closes every cached statement. Call before closing the db handle.
func (sc *StmtCache) Clear() {
	sc.m.Range(func(k, v interface{}) bool {
		_ = v.(*sql.Stmt).Close()
		sc.m.Delete(k)
		return true
	})
}
