package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// RuleFile is one signal rule definition file. A file holds either a
// top-level `rules:` list or a single rule; several YAML documents may be
// separated with `---`.
type RuleFile struct {
	Path  string
	Rules []*trading.SignalRule
}

type ruleDoc struct {
	Rules []yaml.Node `yaml:"rules"`
}

// FindRuleFiles returns the files under dir matching glob, sorted
func FindRuleFiles(dir, glob string) ([]string, error) {
	if glob == "" {
		glob = "**/*.yaml"
	}
	pattern := filepath.Join(dir, glob)

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid rules glob %q: %w", glob, err)
	}

	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadRuleFiles parses every rule file under dir matching glob. Omitted
// fields take the defaults of trading.NewSignalRule and every rule is
// validated.
func LoadRuleFiles(dir, glob string) ([]RuleFile, error) {
	paths, err := FindRuleFiles(dir, glob)
	if err != nil {
		return nil, err
	}

	files := make([]RuleFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		rules, err := ParseRules(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		files = append(files, RuleFile{Path: p, Rules: rules})
	}
	return files, nil
}

// ParseRules decodes rule definitions from YAML
func ParseRules(data []byte) ([]*trading.SignalRule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var rules []*trading.SignalRule
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var list ruleDoc
		if err := doc.Decode(&list); err == nil && len(list.Rules) > 0 {
			for i := range list.Rules {
				r, err := decodeRule(&list.Rules[i])
				if err != nil {
					return nil, err
				}
				rules = append(rules, r)
			}
			continue
		}

		r, err := decodeRule(&doc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func decodeRule(n *yaml.Node) (*trading.SignalRule, error) {
	r := trading.NewSignalRule("", "", "", "")
	if err := n.Decode(r); err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("rule %q (line %d): %w", r.Name, n.Line, err)
	}
	return r, nil
}
