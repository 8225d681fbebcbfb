// Package classify maps transaction text to canonical spending
// categories.
//
// Classification is deterministic keyword matching, not statistical
// inference: the narration and channel text are concatenated,
// upper-cased, and scanned against an ordered rule table. Rules live
// in a YAML specification so new merchants and services can be added
// without touching this code.
package classify

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule binds a single keyword to a category. Keywords are matched as
// case-insensitive substrings; no tokenization or stemming.
type Rule struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
}

// Spec is the loadable rule specification. The priority table (named
// merchants and services) is checked before the generic table; within
// each table the first match wins.
type Spec struct {
	Priority []Rule `yaml:"priority"`
	Generic  []Rule `yaml:"generic"`
}

// Classifier resolves transaction text to a category tag. It is
// immutable after construction and safe for concurrent use.
type Classifier struct {
	priority []Rule
	generic  []Rule
}

// New builds a classifier from a spec. Keywords are upper-cased once
// here so Classify only does substring scans.
func New(spec Spec) *Classifier {
	c := &Classifier{
		priority: make([]Rule, len(spec.Priority)),
		generic:  make([]Rule, len(spec.Generic)),
	}
	for i, r := range spec.Priority {
		c.priority[i] = Rule{Keyword: strings.ToUpper(r.Keyword), Category: r.Category}
	}
	for i, r := range spec.Generic {
		c.generic[i] = Rule{Keyword: strings.ToUpper(r.Keyword), Category: r.Category}
	}
	return c
}

// Load reads a YAML rule spec.
func Load(r io.Reader) (*Classifier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rule spec: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse rule spec: %w", err)
	}
	if len(spec.Priority) == 0 && len(spec.Generic) == 0 {
		return nil, fmt.Errorf("rule spec contains no rules")
	}
	return New(spec), nil
}

// LoadFile reads a YAML rule spec from disk.
func LoadFile(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule spec: %w", err)
	}
	defer f.Close()
	return Load(f)
}

var (
	defaultOnce       sync.Once
	defaultClassifier *Classifier
)

// Default returns the classifier built from the embedded rule tables.
func Default() *Classifier {
	defaultOnce.Do(func() {
		var spec Spec
		if err := yaml.Unmarshal(defaultRules, &spec); err != nil {
			// The embedded spec is part of the build; failing to
			// parse it is a programming error.
			panic(fmt.Sprintf("classify: embedded rules.yaml invalid: %v", err))
		}
		defaultClassifier = New(spec)
	})
	return defaultClassifier
}

// Classify returns the category for a transaction's narration and
// channel/mode text, or "Others" when nothing matches. It is a pure
// function: same inputs, same tag.
func (c *Classifier) Classify(narration, mode string) string {
	combined := strings.ToUpper(narration + " " + mode)

	for _, r := range c.priority {
		if strings.Contains(combined, r.Keyword) {
			return r.Category
		}
	}
	for _, r := range c.generic {
		if strings.Contains(combined, r.Keyword) {
			return r.Category
		}
	}
	return "Others"
}
