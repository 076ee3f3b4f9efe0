package fixture

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultDatabaseName is used when the configuration names no database.
const DefaultDatabaseName = "mongodb_test"

// Recognized configuration keys. Any other key is ignored.
const (
	KeyDatabase       = "database"
	KeyCollectionName = "collectionName"
)

// Configuration is the option map a test supplies for its fixture.
type Configuration map[string]string

// ConfigSource produces the configuration. It is called exactly once,
// after the client connects.
type ConfigSource func() Configuration

// Static returns a ConfigSource yielding a copy of cfg.
func Static(cfg Configuration) ConfigSource {
	snapshot := make(Configuration, len(cfg))
	for k, v := range cfg {
		snapshot[k] = v
	}
	return func() Configuration { return snapshot }
}

// Identity is the database/collection pair a fixture operates on.
type Identity struct {
	DatabaseName   string
	CollectionName string
}

// HasCollection reports whether a collection name was configured.
func (id Identity) HasCollection() bool {
	return id.CollectionName != ""
}

// Resolve derives the identity from a configuration. A missing or empty
// database falls back to DefaultDatabaseName; a missing collection name
// stays empty and only fails when a collection operation runs.
func Resolve(cfg Configuration) Identity {
	id := Identity{DatabaseName: DefaultDatabaseName}
	if name, ok := cfg[KeyDatabase]; ok && name != "" {
		id.DatabaseName = name
	}
	if name, ok := cfg[KeyCollectionName]; ok {
		id.CollectionName = name
	}
	return id
}

// UniqueDatabaseName returns prefix followed by a random suffix, for tests
// that share an engine and need isolated databases.
func UniqueDatabaseName(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if prefix == "" {
		return "test_" + suffix
	}
	return prefix + "_" + suffix
}
