package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/credsweep/credsweep/logging"
	"github.com/credsweep/credsweep/regexp"
	"github.com/credsweep/credsweep/version"
	goversion "github.com/hashicorp/go-version"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed catalog.toml
var DefaultCatalog []byte

// Category is a rule family.
type Category string

const (
	Keys                Category = "Keys"
	APIKeys             Category = "APIKeys"
	Oauth               Category = "Oauth"
	Accounts            Category = "Accounts"
	ApplicationSpecific Category = "ApplicationSpecific"
	DirectoryName       Category = "DirectoryName"
	FileName            Category = "FileName"
)

// Categories lists every category in evaluation order.
var Categories = []Category{
	Keys,
	APIKeys,
	Oauth,
	Accounts,
	ApplicationSpecific,
	DirectoryName,
	FileName,
}

// Content reports whether rules of this category are matched against file
// content (as opposed to directory paths or file names).
func (c Category) Content() bool {
	return c != DirectoryName && c != FileName
}

func (c Category) valid() bool {
	return slices.Contains(Categories, c)
}

// Rule is a named detection pattern. Rules are immutable once loaded.
type Rule struct {
	Name     string
	Category Category
	Regex    *regexp.Regexp

	// Keywords are lower-case literals, at least one of which occurs in every
	// match of Regex. Rules without keywords are always evaluated.
	Keywords []string
}

// Catalog is the loaded, compiled rule set. It is never mutated after Parse
// returns and is safe for concurrent use.
type Catalog struct {
	Title string

	rules      []Rule
	byCategory map[Category][]Rule

	// content rules in evaluation order; the keyword index points into it
	content        []Rule
	keywordToRules map[string][]int
	unconditional  []int
}

type ruleEntry struct {
	Name     string   `koanf:"name"`
	Category string   `koanf:"category"`
	Pattern  string   `koanf:"pattern"`
	Keywords []string `koanf:"keywords"`
}

type catalogFile struct {
	Title      string     `koanf:"title"`
	MinVersion string     `koanf:"min_version"`
	Rules      []ruleEntry `koanf:"rules"`
}

// Default returns the embedded catalog, compiled once per process. The regex
// engine must be selected before the first call.
var Default = sync.OnceValues(func() (*Catalog, error) {
	return Parse(DefaultCatalog)
})

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse loads a TOML catalog, validates it and compiles every pattern.
func Parse(data []byte) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), toml.Parser()); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	var file catalogFile
	if err := k.Unmarshal("", &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if err := checkVersion(file.MinVersion); err != nil {
		return nil, err
	}
	if len(file.Rules) == 0 {
		return nil, errors.New("catalog has no rules")
	}

	c := &Catalog{
		Title:          file.Title,
		byCategory:     make(map[Category][]Rule),
		keywordToRules: make(map[string][]int),
	}

	seen := make(map[string]struct{})
	for i, rs := range file.Rules {
		r, err := compileRule(rs)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		key := string(r.Category) + "/" + r.Name
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("rules[%d]: duplicate rule %q in category %s", i, r.Name, r.Category)
		}
		seen[key] = struct{}{}
		c.byCategory[r.Category] = append(c.byCategory[r.Category], r)
	}

	// evaluation order: category order, then file order within a category
	for _, cat := range Categories {
		for _, r := range c.byCategory[cat] {
			c.rules = append(c.rules, r)
			if !cat.Content() {
				continue
			}
			idx := len(c.content)
			c.content = append(c.content, r)
			if len(r.Keywords) == 0 {
				c.unconditional = append(c.unconditional, idx)
				continue
			}
			for _, kw := range r.Keywords {
				c.keywordToRules[kw] = append(c.keywordToRules[kw], idx)
			}
		}
	}

	logging.Debug().
		Int("rules", len(c.rules)).
		Int("keywords", len(c.keywordToRules)).
		Str("engine", regexp.Version()).
		Msg("loaded catalog")
	return c, nil
}

func compileRule(rs ruleEntry) (Rule, error) {
	if rs.Name == "" {
		return Rule{}, errors.New("rule name is required")
	}
	cat := Category(rs.Category)
	if !cat.valid() {
		return Rule{}, fmt.Errorf("rule %q: unknown category %q", rs.Name, rs.Category)
	}
	if rs.Pattern == "" {
		return Rule{}, fmt.Errorf("rule %q: pattern is required", rs.Name)
	}
	re, err := regexp.Compile(rs.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q (%s): %w", rs.Name, cat, err)
	}

	var keywords []string
	if cat.Content() {
		for _, kw := range rs.Keywords {
			kw = strings.ToLower(kw)
			if kw == "" {
				return Rule{}, fmt.Errorf("rule %q: empty keyword", rs.Name)
			}
			keywords = append(keywords, kw)
		}
	} else if len(rs.Keywords) > 0 {
		logging.Warn().Str("rule", rs.Name).Str("category", string(cat)).Msg("keywords ignored on name rules")
	}

	return Rule{
		Name:     rs.Name,
		Category: cat,
		Regex:    re,
		Keywords: keywords,
	}, nil
}

func checkVersion(minVersion string) error {
	if minVersion == "" {
		return nil
	}
	required, err := goversion.NewVersion(minVersion)
	if err != nil {
		return fmt.Errorf("invalid min_version %q: %w", minVersion, err)
	}
	current, err := goversion.NewVersion(version.Version)
	if err != nil {
		logging.Debug().Str("version", version.Version).Msg("skipping catalog version check for development build")
		return nil
	}
	if current.LessThan(required) {
		return fmt.Errorf("catalog requires credsweep %s or newer, running %s", required, current)
	}
	return nil
}

// All returns every rule in evaluation order.
func (c *Catalog) All() []Rule {
	return c.rules
}

// Rules returns the rules of one category in evaluation order.
func (c *Catalog) Rules(cat Category) []Rule {
	return c.byCategory[cat]
}

// ContentRules returns every rule matched against file content, in
// evaluation order.
func (c *Catalog) ContentRules() []Rule {
	return c.content
}

// Keywords returns the sorted set of content-rule keywords.
func (c *Catalog) Keywords() []string {
	kws := make([]string, 0, len(c.keywordToRules))
	for kw := range c.keywordToRules {
		kws = append(kws, kw)
	}
	slices.Sort(kws)
	return kws
}

// RulesForKeyword returns indexes into ContentRules of the rules that
// declare keyword.
func (c *Catalog) RulesForKeyword(keyword string) []int {
	return c.keywordToRules[keyword]
}

// UnconditionalRules returns indexes into ContentRules of the rules without
// keywords.
func (c *Catalog) UnconditionalRules() []int {
	return c.unconditional
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}
