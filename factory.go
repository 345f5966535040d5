// file: factory.go
package inventory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type readerFactory func(cfg ConnectionConfig) (Reader, error)

// readers maps every accepted connection type, aliases included.
var readers = map[string]readerFactory{
	"mysql":      func(cfg ConnectionConfig) (Reader, error) { return newMySQLConnector(cfg) },
	"postgres":   func(cfg ConnectionConfig) (Reader, error) { return newPostgresConnector(cfg) },
	"postgresql": func(cfg ConnectionConfig) (Reader, error) { return newPostgresConnector(cfg) },
	"mssql":      func(cfg ConnectionConfig) (Reader, error) { return newMSSQLConnector(cfg) },
	"sqlserver":  func(cfg ConnectionConfig) (Reader, error) { return newMSSQLConnector(cfg) },
}

// SupportsType reports whether NewReader accepts connection type t.
func SupportsType(t string) bool {
	_, ok := readers[strings.ToLower(strings.TrimSpace(t))]
	return ok
}

// NewReader opens a reader for the monitoring database described by cfg.
func NewReader(cfg ConnectionConfig) (Reader, error) {
	t := strings.ToLower(strings.TrimSpace(cfg.Type))
	if t == "" {
		return nil, errors.New("connection type is required")
	}
	open, ok := readers[t]
	if !ok {
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	return open(cfg)
}

func openDatabase(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	return db, nil
}
