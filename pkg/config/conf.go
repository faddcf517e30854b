// Package config loads the app home directory and custom labeling
// function definitions.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/radlabel/radlabel/pkg/label"
)

const (
	dirMode = 0700

	lfSchemaName = "lf-config.json"

	voteAbnormal = "abnormal"
	voteNormal   = "normal"

	scopeImpression = "impression"
)

//go:embed schema/lf-config.json
var lfSchema string

// LFConfig is a custom labeling function file.
type LFConfig struct {
	Version         int     `yaml:"version" json:"version"`
	ReplaceBuiltins bool    `yaml:"replace_builtins,omitempty" json:"replace_builtins,omitempty"`
	LFs             []LFDef `yaml:"lfs" json:"lfs"`
}

// LFDef is one custom labeling function: the vote fired when any of
// the patterns matches the scoped report text.
type LFDef struct {
	Name     string   `yaml:"name" json:"name"`
	Vote     string   `yaml:"vote" json:"vote"`
	Scope    string   `yaml:"scope,omitempty" json:"scope,omitempty"`
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// LoadLFConfig reads a custom LF file and checks it against the
// embedded schema before decoding.
func LoadLFConfig(path string) (*LFConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := validateLFConfig(raw); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	var c LFConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	slog.Debug("loaded LF config", "path", path, "lfs", len(c.LFs))

	return &c, nil
}

// validateLFConfig checks the decoded document against the schema. The
// YAML value goes through a JSON round trip so the validator sees plain
// JSON types.
func validateLFConfig(doc any) error {
	jb, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding config for validation: %w", err)
	}
	var jdoc any
	if err := json.Unmarshal(jb, &jdoc); err != nil {
		return fmt.Errorf("decoding config for validation: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(lfSchemaName, strings.NewReader(lfSchema)); err != nil {
		return fmt.Errorf("loading LF schema: %w", err)
	}
	schema, err := compiler.Compile(lfSchemaName)
	if err != nil {
		return fmt.Errorf("compiling LF schema: %w", err)
	}

	return schema.Validate(jdoc)
}

// Build compiles the definitions into labeling functions.
func (c *LFConfig) Build() ([]label.LF, error) {
	lfs := make([]label.LF, 0, len(c.LFs))
	for i := range c.LFs {
		lf, err := c.LFs[i].build()
		if err != nil {
			return nil, err
		}
		lfs = append(lfs, lf)
	}
	return lfs, nil
}

func (def *LFDef) build() (label.LF, error) {
	var vote label.Vote
	switch def.Vote {
	case voteAbnormal:
		vote = label.Abnormal
	case voteNormal:
		vote = label.Normal
	default:
		return label.LF{}, fmt.Errorf("labeling function %s: unknown vote %q", def.Name, def.Vote)
	}

	regexes := make([]*regexp.Regexp, 0, len(def.Patterns))
	for _, p := range def.Patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return label.LF{}, fmt.Errorf("labeling function %s: bad pattern %q: %w", def.Name, p, err)
		}
		regexes = append(regexes, re)
	}

	impression := def.Scope == scopeImpression
	return label.LF{
		Name: def.Name,
		Eval: func(d *label.Document) label.Vote {
			text := d.Normalized
			if impression {
				text = d.Impression
			}
			for _, re := range regexes {
				if re.MatchString(text) {
					return vote
				}
			}
			return label.Abstain
		},
	}, nil
}

// GetOrCreateHomeDir returns the app directory under the user's home,
// creating it on first use. The created flag is set when it was.
func GetOrCreateHomeDir(name string) (string, bool, error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}
	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating home dir", "dir", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		return dir, true, nil
	}

	return dir, false, nil
}
