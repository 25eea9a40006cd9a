package phrases

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Category names a family of page-content signals.
type Category string

const (
	Restriction Category = "restriction"
	Waiting     Category = "waiting"
	Ended       Category = "ended"
	Disconnect  Category = "disconnect"
)

var categories = []Category{Restriction, Waiting, Ended, Disconnect}

// Matcher reports whether page content carries a signal. Content is
// already lower-cased by the catalog.
type Matcher interface {
	Match(content string) (matched string, ok bool)
}

// LineParser parses one catalog value into a matcher.
type LineParser interface {
	CanParse(value string) bool
	Parse(value string) (Matcher, error)
}

// Catalog holds the ordered matchers for every category.
type Catalog struct {
	sets map[Category][]Matcher
}

// Default returns the built-in phrase sets.
func Default() *Catalog {
	c := &Catalog{sets: make(map[Category][]Matcher, len(categories))}
	for category, values := range defaultPhrases() {
		for _, value := range values {
			c.sets[category] = append(c.sets[category], newLiteralMatcher(value))
		}
	}
	return c
}

// Load returns the defaults extended by an optional catalog file. A missing
// file is not an error.
func Load(path string) (*Catalog, error) {
	return LoadWithParsers(path, defaultParsers())
}

// LoadWithParsers allows custom value syntaxes.
func LoadWithParsers(path string, parsers []LineParser) (*Catalog, error) {
	catalog := Default()
	if len(parsers) == 0 {
		parsers = defaultParsers()
	}
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return catalog, nil
		}
		return nil, fmt.Errorf("failed to read phrase file %q: %w", path, err)
	}

	if err := catalog.parse(string(contents), parsers); err != nil {
		return nil, fmt.Errorf("failed to parse phrase file %q: %w", path, err)
	}
	return catalog, nil
}

// Match returns the first matcher hit for the category. Matching is case
// insensitive.
func (c *Catalog) Match(category Category, content string) (string, bool) {
	if c == nil || len(c.sets[category]) == 0 {
		return "", false
	}
	content = strings.ToLower(content)
	for _, m := range c.sets[category] {
		if matched, ok := m.Match(content); ok {
			return matched, true
		}
	}
	return "", false
}

// Len returns how many matchers a category holds.
func (c *Catalog) Len(category Category) int {
	if c == nil {
		return 0
	}
	return len(c.sets[category])
}

// parse reads "category: value" lines. A "category: !reset" line drops the
// defaults for that category.
func (c *Catalog) parse(contents string, parsers []LineParser) error {
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, found := strings.Cut(line, ":")
		if !found {
			return fmt.Errorf("line %d: expected \"category: phrase\"", index+1)
		}
		category, err := parseCategory(name)
		if err != nil {
			return fmt.Errorf("line %d: %w", index+1, err)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("line %d: empty phrase", index+1)
		}
		if value == "!reset" {
			c.sets[category] = nil
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(value) {
				continue
			}
			matcher, err := parser.Parse(value)
			if err != nil {
				return fmt.Errorf("line %d: %w", index+1, err)
			}
			c.sets[category] = append(c.sets[category], matcher)
			parsed = true
			break
		}
		if !parsed {
			return fmt.Errorf("line %d: unsupported phrase format", index+1)
		}
	}
	return nil
}

func parseCategory(name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, category := range categories {
		if string(category) == name {
			return category, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}

func defaultParsers() []LineParser {
	return []LineParser{regexParser{}, literalParser{}}
}

type literalParser struct{}

func (literalParser) CanParse(string) bool { return true }

func (literalParser) Parse(value string) (Matcher, error) {
	return newLiteralMatcher(value), nil
}

type literalMatcher struct {
	phrase  string
	lowered string
}

func newLiteralMatcher(phrase string) literalMatcher {
	return literalMatcher{phrase: phrase, lowered: strings.ToLower(phrase)}
}

func (m literalMatcher) Match(content string) (string, bool) {
	if m.lowered == "" {
		return "", false
	}
	if strings.Contains(content, m.lowered) {
		return m.phrase, true
	}
	return "", false
}

// regexParser accepts /pattern/ values.
type regexParser struct{}

func (regexParser) CanParse(value string) bool {
	return len(value) > 2 && strings.HasPrefix(value, "/") && strings.HasSuffix(value, "/")
}

func (regexParser) Parse(value string) (Matcher, error) {
	pattern := value[1 : len(value)-1]
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexMatcher{re: re}, nil
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) Match(content string) (string, bool) {
	found := m.re.FindString(content)
	if found == "" {
		return "", false
	}
	return found, true
}
