package agents

import (
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed guardrail.yaml
var guardrailYAML []byte

type guardrailConfig struct {
	FallbackMessage string   `yaml:"fallback_message"`
	Phrases         []string `yaml:"phrases"`
	MedicalTerms    []string `yaml:"medical_terms"`
	Patterns        []string `yaml:"patterns"`
	Allowed         []string `yaml:"allowed"`
}

type rule struct {
	name string
	re   *regexp.Regexp
	stem bool
}

// Guardrail rejects unsafe coaching text.
type Guardrail struct {
	fallback string
	rules    []rule
	allowed  map[string]bool
}

// Violation describes why text was rejected.
type Violation struct {
	Rule  string
	Match string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %q", v.Rule, v.Match)
}

// DefaultGuardrail loads the embedded lexicon.
func DefaultGuardrail() (*Guardrail, error) {
	return ParseGuardrail(guardrailYAML)
}

// ParseGuardrail builds a guardrail from a YAML lexicon.
func ParseGuardrail(data []byte) (*Guardrail, error) {
	var cfg guardrailConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse guardrail lexicon: %w", err)
	}
	if strings.TrimSpace(cfg.FallbackMessage) == "" {
		return nil, fmt.Errorf("guardrail lexicon has no fallback message")
	}

	g := &Guardrail{fallback: cfg.FallbackMessage, allowed: make(map[string]bool, len(cfg.Allowed))}
	for _, w := range cfg.Allowed {
		g.allowed[strings.ToLower(strings.TrimSpace(w))] = true
	}
	for _, p := range cfg.Phrases {
		g.rules = append(g.rules, rule{name: "phrase", re: stemPattern(p), stem: true})
	}
	for _, t := range cfg.MedicalTerms {
		g.rules = append(g.rules, rule{name: "medical", re: stemPattern(t), stem: true})
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile guardrail pattern %q: %w", p, err)
		}
		g.rules = append(g.rules, rule{name: "calorie_limit", re: re})
	}

	if v, bad := g.Check(g.fallback); bad {
		return nil, fmt.Errorf("guardrail fallback message violates its own lexicon: %s", v)
	}
	return g, nil
}

// MustDefaultGuardrail panics if the embedded lexicon is invalid.
func MustDefaultGuardrail() *Guardrail {
	g, err := DefaultGuardrail()
	if err != nil {
		panic(err)
	}
	return g
}

// stemPattern matches phrase case-insensitively at the start of a word, with
// any run of whitespace between its words. The last word is a stem: "diet"
// also matches "dieting" and "dietary". The whole final word is captured so
// it can be checked against the allowed list.
func stemPattern(phrase string) *regexp.Regexp {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\w*`)
}

// Check reports the first violation in text.
func (g *Guardrail) Check(text string) (Violation, bool) {
	for _, r := range g.rules {
		for _, m := range r.re.FindAllString(text, -1) {
			if r.stem && g.exempt(m) {
				continue
			}
			return Violation{Rule: r.name, Match: m}, true
		}
	}
	return Violation{}, false
}

// exempt reports whether the last word of match is on the allowed list.
func (g *Guardrail) exempt(match string) bool {
	words := strings.Fields(match)
	if len(words) == 0 {
		return false
	}
	return g.allowed[strings.ToLower(words[len(words)-1])]
}

// Filter returns text unchanged when it is safe, otherwise the fallback
// message. The rejection is logged.
func (g *Guardrail) Filter(text string) (string, bool) {
	v, bad := g.Check(text)
	if !bad {
		return text, false
	}
	slog.Warn("GUARDRAIL: Rejected message", "rule", v.Rule, "match", v.Match)
	return g.fallback, true
}

func (g *Guardrail) Fallback() string {
	return g.fallback
}
