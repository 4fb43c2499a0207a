// Package rules loads declarative rule definitions from YAML sources.
//
// A source file holds a single rule mapping or a sequence of them.
// Each decoded rule is validated structurally against an embedded CUE
// schema, then coerced into its canonical form (effect list, default
// priority and type). The caller is responsible for persisting validated
// rules into the store's rule collection.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/driftline/activitybus/internal/activity"
)

//go:embed schema.cue
var schemaCUE string

// LoadError reports a malformed rule source. It aborts the load call;
// rules validated before the failure are still returned alongside it.
type LoadError struct {
	File    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("rule load: %s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("rule load: %s", e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err is a rule load failure.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
)

func ruleSchema() cue.Value {
	schemaOnce.Do(func() {
		v := cuecontext.New().CompileString(schemaCUE, cue.Filename("schema.cue"))
		schemaValue = v.LookupPath(cue.ParsePath("#Rule"))
	})
	return schemaValue
}

// Load reads rule definitions from the given files and directories.
// Directories are walked recursively for .yaml and .yml files, in
// lexical order so the resulting rule order is reproducible.
//
// Returns the rules validated before any failure; on failure the error
// is a *LoadError naming the offending file.
func Load(paths ...string) ([]activity.Rule, error) {
	var rules []activity.Rule

	for _, path := range paths {
		files, err := collectFiles(path)
		if err != nil {
			return rules, err
		}
		for _, file := range files {
			loaded, err := loadFile(file)
			rules = append(rules, loaded...)
			if err != nil {
				return rules, err
			}
		}
	}

	return rules, nil
}

func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "source does not exist", Err: err}
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{File: path, Message: "walking rule directory", Err: err}
	}

	sort.Strings(files)
	return files, nil
}

func loadFile(file string) ([]activity.Rule, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, &LoadError{File: file, Message: "reading rule file", Err: err}
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{File: file, Message: fmt.Sprintf("parsing YAML: %v", err), Err: err}
	}

	var raws []map[string]any
	switch doc := doc.(type) {
	case map[string]any:
		raws = append(raws, doc)
	case []any:
		for i, item := range doc {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, &LoadError{File: file, Message: fmt.Sprintf("rule %d: not a mapping", i)}
			}
			raws = append(raws, m)
		}
	case nil:
		return nil, nil
	default:
		return nil, &LoadError{File: file, Message: "rule source must be a mapping or a sequence of mappings"}
	}

	var rules []activity.Rule
	for _, raw := range raws {
		rule, err := Validate(raw)
		if err != nil {
			return rules, &LoadError{File: file, Message: err.Error(), Err: err}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Validate checks a decoded rule against the schema and coerces it into
// canonical form: effect as a list, priority defaulting to 100, type
// defaulting to "Rule".
func Validate(raw map[string]any) (activity.Rule, error) {
	schema := ruleSchema()
	if err := schema.Err(); err != nil {
		return activity.Rule{}, fmt.Errorf("rule schema: %w", err)
	}

	v := schema.Context().Encode(raw)
	if err := v.Err(); err != nil {
		return activity.Rule{}, fmt.Errorf("encoding rule: %w", err)
	}

	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return activity.Rule{}, fmt.Errorf("invalid rule: %w", err)
	}

	return activity.RuleFromMap(raw)
}
