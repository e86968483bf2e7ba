package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Vocabulary holds the keyword lists, role patterns and skill synonyms the chat flow uses.
type Vocabulary struct {
	GreetingKeywords   []string            `yaml:"greeting_keywords"`
	EvaluationKeywords []string            `yaml:"evaluation_keywords"`
	RolePatterns       []string            `yaml:"role_patterns"`
	Skills             map[string][]string `yaml:"skills"`

	roleRegexps []*regexp.Regexp
}

// LoadVocabulary parses the vocabulary at path, or the embedded default when path is empty.
func LoadVocabulary(path string) (*Vocabulary, error) {
	content := defaultVocabulary
	if path != "" {
		// #nosec G304 -- operator supplied configuration file
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("op=config.LoadVocabulary: read %s: %w", path, err)
		}
		content = b
	}
	return ParseVocabulary(content)
}

// ParseVocabulary decodes a YAML vocabulary document and compiles its role patterns.
func ParseVocabulary(content []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("op=config.ParseVocabulary: %w", err)
	}
	if len(v.EvaluationKeywords) == 0 {
		return nil, fmt.Errorf("op=config.ParseVocabulary: evaluation_keywords must not be empty")
	}
	for _, p := range v.RolePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("op=config.ParseVocabulary: role pattern %q: %w", p, err)
		}
		v.roleRegexps = append(v.roleRegexps, re)
	}
	return &v, nil
}

// DefaultVocabulary returns the embedded vocabulary. It panics if the embedded document is invalid.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabulary)
	if err != nil {
		panic(err)
	}
	return v
}

// RoleRegexps returns the compiled role patterns in declaration order.
func (v *Vocabulary) RoleRegexps() []*regexp.Regexp { return v.roleRegexps }

// SkillNames returns canonical skill names sorted for deterministic iteration.
func (v *Vocabulary) SkillNames() []string {
	names := make([]string, 0, len(v.Skills))
	for k := range v.Skills {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Synonyms returns the lower-cased synonyms of a canonical skill, including the name itself.
func (v *Vocabulary) Synonyms(skill string) []string {
	out := []string{strings.ToLower(skill)}
	for _, s := range v.Skills[skill] {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && s != out[0] {
			out = append(out, s)
		}
	}
	return out
}
