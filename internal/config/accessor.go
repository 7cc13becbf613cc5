package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one leaf of the config tree addressed by its dotted YAML path.
type Entry struct {
	Path  string
	Value any
}

// GetByPath retrieves a config value by dot-notation path (e.g. "images.maxFiles").
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := asTree(cfg)
	if err != nil {
		return nil, err
	}

	var node any = tree
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
		if node, ok = m[key]; !ok {
			return nil, fmt.Errorf("unknown config path: %s", path)
		}
	}
	return node, nil
}

// ListPaths returns every leaf of the config, sorted by path.
func ListPaths(cfg *Config) []Entry {
	tree, err := asTree(cfg)
	if err != nil {
		return nil
	}
	var out []Entry
	collectLeaves("", tree, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Sanitize returns a copy of the config with secrets masked, safe to print.
func Sanitize(cfg *Config) *Config {
	masked := *cfg
	masked.Gemini.APIKey = mask(masked.Gemini.APIKey)
	masked.Twilio.AuthToken = mask(masked.Twilio.AuthToken)
	return &masked
}

// mask keeps the first and last four characters of long secrets.
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// asTree round-trips the config through YAML so paths match the file keys.
func asTree(cfg *Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func collectLeaves(prefix string, m map[string]any, out *[]Entry) {
	for k, v := range m {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			collectLeaves(p, sub, out)
			continue
		}
		*out = append(*out, Entry{Path: p, Value: v})
	}
}
