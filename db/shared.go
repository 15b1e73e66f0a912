package db

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	// DefaultPageSize is the number of results per page for paginated queries.
	DefaultPageSize = 16

	// MaxPageSize caps client-supplied page sizes.
	MaxPageSize = 100
)

// RandomDatabaseName returns a random database name, used to isolate test
// runs against a shared MongoDB instance.
func RandomDatabaseName() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "rentit_" + hex.EncodeToString(b)
}

// SanitizePageSize clamps a client-supplied page size into [1, MaxPageSize],
// falling back to DefaultPageSize when unset.
func SanitizePageSize(pageSize int) int {
	if pageSize <= 0 {
		return DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}
