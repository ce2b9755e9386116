package settings

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Source loads the options of one installation.
type Source interface {
	Load(ctx context.Context, subreddit string) (Values, error)
}

// FileSource serves options from a YAML document of the form
//
//	<subreddit>:
//	  flair-list: "Megathread"
//	  remove-duplicates: true
//
// The document is read once; scalar values are kept as their literal text.
type FileSource struct {
	installations map[string]map[string]string
}

// LoadFile reads and parses the YAML file at path.
func LoadFile(path string) (*FileSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	return ParseFile(raw)
}

// ParseFile parses a YAML settings document.
func ParseFile(raw []byte) (*FileSource, error) {
	var doc map[string]map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("settings: parse: %w", err)
	}

	fs := &FileSource{installations: make(map[string]map[string]string, len(doc))}
	for sub, opts := range doc {
		m := make(map[string]string, len(opts))
		for name, node := range opts {
			if node.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("settings: %s.%s: expected scalar value", sub, name)
			}
			m[name] = node.Value
		}
		fs.installations[sub] = m
	}
	return fs, nil
}

// Load returns the options for subreddit. An unknown subreddit yields an
// empty snapshot, which leaves every rule disabled.
func (f *FileSource) Load(_ context.Context, subreddit string) (Values, error) {
	return NewValues(f.installations[subreddit]), nil
}

// Subreddits returns the installations named in the document, sorted.
func (f *FileSource) Subreddits() []string {
	subs := make([]string, 0, len(f.installations))
	for sub := range f.installations {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	return subs
}

// StaticSource serves the same snapshot for every subreddit.
type StaticSource Values

// Load implements Source.
func (s StaticSource) Load(context.Context, string) (Values, error) {
	return Values(s), nil
}
