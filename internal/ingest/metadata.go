package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nickcecere/strata/internal/retriever"
	"github.com/pelletier/go-toml/v2"
)

// Descriptor file names, in lookup order.
const (
	DescriptorJSON = "metadata.json"
	DescriptorTOML = "metadata.toml"
)

// LoadDescriptor returns the collection metadata stored in dir, read from
// metadata.json, else metadata.toml. processDate is set to now unless the
// descriptor provides it.
func LoadDescriptor(dir string, now time.Time) (map[string]any, error) {
	meta, err := readDescriptor(dir)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = make(map[string]any)
	}
	if _, ok := meta[retriever.MetaProcessDate]; !ok {
		meta[retriever.MetaProcessDate] = now.UTC().Format(time.RFC3339)
	}
	return meta, nil
}

// readDescriptor returns nil when dir has no descriptor.
func readDescriptor(dir string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorJSON))
	if err == nil {
		var meta map[string]any
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", DescriptorJSON, err)
		}
		return meta, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", DescriptorJSON, err)
	}

	data, err = os.ReadFile(filepath.Join(dir, DescriptorTOML))
	if err == nil {
		var meta map[string]any
		if err := toml.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", DescriptorTOML, err)
		}
		return meta, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", DescriptorTOML, err)
	}
	return nil, nil
}
