package registry

import "strings"

// CollectionName names a collection or stands for the default one. The zero
// value is the default.
type CollectionName struct {
	name string
}

// Default returns the name that resolves to the configured default collection.
func Default() CollectionName {
	return CollectionName{}
}

// Named returns an explicit collection name. Blank names mean the default.
func Named(name string) CollectionName {
	return CollectionName{name: strings.TrimSpace(name)}
}

// IsDefault reports whether n stands for the default collection.
func (n CollectionName) IsDefault() bool {
	return n.name == ""
}

// Resolve returns the explicit name, or def for the default.
func (n CollectionName) Resolve(def string) string {
	if n.IsDefault() {
		return def
	}
	return n.name
}

func (n CollectionName) String() string {
	if n.IsDefault() {
		return "<default>"
	}
	return n.name
}
