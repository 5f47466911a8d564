package blobstore

import "fmt"

// Open creates the store named by kind ("local" or "sqlite") at path.
func Open(kind, path string) (Store, error) {
	switch kind {
	case "local", "":
		return NewLocalStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported docstore type: %s", kind)
	}
}
