package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"muehle-agent/internal/domain"
)

// A config file may list fragments under `includes:`. Entries are paths or
// globs relative to the file naming them. Fragments are overlaid in order,
// then the naming file is applied again so its own keys win. Every fragment
// must live under the directory of the top-level file.

const maxIncludeDepth = 10

// includeWalker merges fragments below one top-level config file.
type includeWalker struct {
	root  string   // directory of the top-level file
	stack []string // files being merged, outermost first
}

// mergeIncludes overlays the fragments named by cfg.Includes onto cfg.
// mainPath is the absolute path of the file cfg was parsed from.
func mergeIncludes(cfg *Config, mainPath string) error {
	w := &includeWalker{root: filepath.Dir(mainPath), stack: []string{mainPath}}
	patterns := cfg.Includes
	cfg.Includes = nil
	return w.walk(cfg, filepath.Dir(mainPath), patterns)
}

func (w *includeWalker) walk(cfg *Config, dir string, patterns []string) error {
	if len(w.stack) > maxIncludeDepth {
		return w.fail("nested more than %d deep at %s", maxIncludeDepth, w.stack[len(w.stack)-1])
	}
	for _, pattern := range patterns {
		paths, err := w.expand(dir, pattern)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := w.merge(cfg, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// expand turns one entry into fragment paths. A glob keeps only .yaml and
// .yml matches and may match nothing; a literal path is returned as is so a
// missing file is reported by merge.
func (w *includeWalker) expand(dir, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)
	if !w.contains(pattern) {
		return nil, w.fail("%s escapes %s", pattern, w.root)
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, w.fail("bad pattern %q: %v", pattern, err)
	}
	paths := matches[:0]
	for _, m := range matches {
		switch strings.ToLower(filepath.Ext(m)) {
		case ".yaml", ".yml":
			paths = append(paths, m)
		}
	}
	return paths, nil
}

func (w *includeWalker) contains(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// merge overlays one fragment, its own fragments, and then the fragment again.
func (w *includeWalker) merge(cfg *Config, path string) error {
	for i, open := range w.stack {
		if open == path {
			return w.fail("circular include %s", w.chain(w.stack[i:], path))
		}
	}
	if err := validatePermissions(path); err != nil {
		return w.fail("%v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return w.fail("read %s: %v", path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var nested struct {
		Includes []string `yaml:"includes"`
	}
	if err := yaml.Unmarshal(data, &nested); err != nil {
		return w.fail("parse %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return w.fail("parse %s: %v", path, err)
	}
	cfg.Includes = nil
	if len(nested.Includes) == 0 {
		return nil
	}

	w.stack = append(w.stack, path)
	err = w.walk(cfg, filepath.Dir(path), nested.Includes)
	w.stack = w.stack[:len(w.stack)-1]
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return w.fail("parse %s: %v", path, err)
	}
	cfg.Includes = nil
	return nil
}

// chain renders open files plus the repeated one relative to root.
func (w *includeWalker) chain(open []string, again string) string {
	names := make([]string, 0, len(open)+1)
	for _, p := range append(open[:len(open):len(open)], again) {
		if rel, err := filepath.Rel(w.root, p); err == nil {
			p = rel
		}
		names = append(names, p)
	}
	return strings.Join(names, " -> ")
}

func (w *includeWalker) fail(format string, args ...any) error {
	return domain.NewDomainError("Config.Include", domain.ErrConfigLoad, fmt.Sprintf(format, args...))
}
