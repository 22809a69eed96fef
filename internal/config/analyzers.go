package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AnalyzerRegistryFile is the on-disk YAML shape for the analyzer/mode
// registry (spec §4.4, §6 "Analyzers"): per mode, a map of implementation
// name to enabled flag. Exactly one implementation is expected enabled
// per mode; a mode absent from the file has no available implementation.
type AnalyzerRegistryFile struct {
	Analyzers map[string]map[string]bool `yaml:"analyzers"`
}

// LoadAnalyzerRegistry loads the analyzer/mode registry from a YAML file,
// following the same read-and-unmarshal shape as the drone registry this
// package replaced.
func LoadAnalyzerRegistry(path string) (map[string]map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analyzer registry: %w", err)
	}

	var file AnalyzerRegistryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse analyzer registry: %w", err)
	}

	return file.Analyzers, nil
}
