// Package settings provides key/blob stores that play the role of a host's
// simple persistent settings store. Each key holds one opaque blob which is
// replaced as a whole on every write.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when nothing is stored under the key
var ErrNotFound = errors.New("settings: key not found")

// Backend stores one blob per key. Set must not return before the value is
// durable.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open selects a backend by DSN scheme:
//
//	file:///var/lib/submitq       directory of <key>.json files
//	sqlite:///var/lib/submitq.db  SQLite database file
//	postgres://user@host/db       PostgreSQL table submitq_settings
//	etcd://host:2379/prefix       etcd keys under prefix
//	memory://                     process memory, lost on exit
//
// A DSN without a scheme is treated as a directory path.
func Open(ctx context.Context, dsn string) (Backend, error) {
	scheme, rest, found := strings.Cut(dsn, "://")
	if !found {
		return wrap(OpenFile(dsn))
	}
	switch scheme {
	case "file":
		return wrap(OpenFile(rest))
	case "sqlite":
		return wrap(OpenSQLite(ctx, rest))
	case "postgres", "postgresql":
		return wrap(OpenPostgres(ctx, dsn))
	case "etcd":
		return wrap(OpenEtcd(ctx, dsn))
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported settings store scheme %q", scheme)
	}
}

// wrap keeps a typed nil out of the Backend interface
func wrap[T Backend](b T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}
