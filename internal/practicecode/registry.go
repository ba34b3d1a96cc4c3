package practicecode

import (
	"errors"

	"github.com/dsvrelay/dsv-relay/internal/config"
)

// StoreKind names a CounterStore backend.
type StoreKind string

const (
	StoreFile  StoreKind = "file"
	StoreSQL   StoreKind = "sql"
	StoreRedis StoreKind = "redis"
)

// ResolveStore maps a configured store name to its StoreKind using the aliases config
// accepts: json, database, db and valkey besides file, sql and redis.
func ResolveStore(name string) (StoreKind, error) {
	canon, ok := config.CanonicalStore(name)
	if !ok {
		return "", errors.New("unknown practice code store: " + name)
	}
	return StoreKind(canon), nil
}
