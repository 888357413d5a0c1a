package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HarvestDocument is one YAML harvest description: the providers to
// harvest from and the searches to run against them.
type HarvestDocument struct {
	Providers map[string]ProviderSettings `yaml:"providers"`
	Searches  []Search                    `yaml:"searches"`
}

// ProviderSettings configures one provider entry of a harvest
// document. String values may carry the !ENV tag to be resolved from
// the environment, so credentials stay out of the file.
type ProviderSettings struct {
	Type           string `yaml:"type"`
	URL            string `yaml:"url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	EntryIDPattern string `yaml:"entry_id_pattern"`
}

// Search is one search to run: the provider it targets and the raw
// search parameters, validated later by the provider itself.
type Search struct {
	Provider   string         `yaml:"provider"`
	Parameters map[string]any `yaml:"parameters"`
}

// LoadHarvest reads and validates a harvest document.
func LoadHarvest(path string) (HarvestDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return HarvestDocument{}, fmt.Errorf("read harvest document: %w", err)
	}
	return ParseHarvest(raw)
}

// LoadSearches reads a standalone search-definitions document: a
// `searches` list kept separately from the providers, so the same
// provider configuration can serve different harvest runs.
func LoadSearches(path string) ([]Search, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read search document: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse search document: %w", err)
	}
	if err := resolveEnvTags(&root); err != nil {
		return nil, err
	}
	var document struct {
		Searches []Search `yaml:"searches"`
	}
	if err := root.Decode(&document); err != nil {
		return nil, fmt.Errorf("parse search document: %w", err)
	}
	return document.Searches, nil
}

// ParseHarvest parses a harvest document, resolving !ENV tags against
// the process environment.
func ParseHarvest(raw []byte) (HarvestDocument, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return HarvestDocument{}, fmt.Errorf("parse harvest document: %w", err)
	}
	if err := resolveEnvTags(&root); err != nil {
		return HarvestDocument{}, err
	}

	var document HarvestDocument
	if err := root.Decode(&document); err != nil {
		return HarvestDocument{}, fmt.Errorf("parse harvest document: %w", err)
	}
	if err := document.Validate(); err != nil {
		return HarvestDocument{}, err
	}
	return document, nil
}

// resolveEnvTags walks the YAML tree and replaces !ENV-tagged scalars
// with the value of the named environment variable. An unset variable
// is an error rather than an empty credential.
func resolveEnvTags(node *yaml.Node) error {
	if node.Tag == "!ENV" {
		if node.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: !ENV applies to scalar values only", node.Line)
		}
		value, ok := os.LookupEnv(node.Value)
		if !ok {
			return fmt.Errorf("line %d: environment variable %q is not set", node.Line, node.Value)
		}
		node.Tag = "!!str"
		node.Value = value
		return nil
	}
	for _, child := range node.Content {
		if err := resolveEnvTags(child); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the document's internal consistency; the search
// parameters themselves are validated by each provider. A document may
// carry no searches when they come from a separate search document.
func (d HarvestDocument) Validate() error {
	if len(d.Providers) == 0 {
		return fmt.Errorf("harvest document defines no providers")
	}
	for name, settings := range d.Providers {
		if settings.Type == "" {
			return fmt.Errorf("provider %q: a type is required", name)
		}
	}
	for i, search := range d.Searches {
		if search.Provider == "" {
			return fmt.Errorf("search #%d names no provider", i+1)
		}
		if _, ok := d.Providers[search.Provider]; !ok {
			return fmt.Errorf("search #%d references unknown provider %q", i+1, search.Provider)
		}
	}
	return nil
}
