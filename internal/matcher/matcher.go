package matcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PatternType selects how a pattern is interpreted.
type PatternType string

// Supported pattern types.
const (
	Simple    PatternType = "simple"
	Extension PatternType = "extension"
	Regex     PatternType = "regex"
	Glob      PatternType = "glob"
)

// ErrEmptyPattern is returned for blank patterns.
var ErrEmptyPattern = errors.New("pattern cannot be empty")

// ErrInvalidPattern wraps compile failures of regex and glob patterns.
var ErrInvalidPattern = errors.New("invalid pattern")

// Range is a half-open [Start, End) byte span of a name. It serialises as a
// two element array.
type Range struct {
	Start int
	End   int
}

// MarshalJSON encodes r as [start, end].
func (r Range) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal([2]int{r.Start, r.End})
	if err != nil {
		return nil, fmt.Errorf("marshal range: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes [start, end].
func (r *Range) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("unmarshal range: %w", err)
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// Matcher reports where a pattern hits a file name. A nil or empty result
// means no match.
type Matcher interface {
	Match(name string) []Range
}

// ParsePatternType maps user input onto a PatternType.
func ParsePatternType(s string) (PatternType, error) {
	switch PatternType(strings.ToLower(strings.TrimSpace(s))) {
	case Simple, "":
		return Simple, nil
	case Extension, "ext":
		return Extension, nil
	case Regex, "regexp":
		return Regex, nil
	case Glob:
		return Glob, nil
	default:
		return "", fmt.Errorf("unknown pattern type %q", s)
	}
}

// Compile validates pattern and returns the Matcher for kind.
func Compile(pattern string, kind PatternType, caseSensitive bool) (Matcher, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, ErrEmptyPattern
	}
	switch kind {
	case Simple, "":
		return newSubstring(pattern, caseSensitive)
	case Extension:
		return newExtensions(pattern, caseSensitive)
	case Regex:
		expr := pattern
		if !caseSensitive {
			expr = "(?i)" + pattern
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
		return regexMatcher{re: re}, nil
	case Glob:
		expr := pattern
		if !caseSensitive {
			expr = strings.ToLower(pattern)
		}
		if !doublestar.ValidatePattern(expr) {
			return nil, fmt.Errorf("%w: malformed glob %q", ErrInvalidPattern, pattern)
		}
		return globMatcher{pattern: expr, caseSensitive: caseSensitive}, nil
	default:
		return nil, fmt.Errorf("unknown pattern type %q", kind)
	}
}

type substring struct {
	needle        string
	caseSensitive bool
	// folded handles names whose lower-case form changes byte length, where
	// offsets into the lowered copy would not line up with the original.
	folded *regexp.Regexp
}

func newSubstring(pattern string, caseSensitive bool) (Matcher, error) {
	m := substring{needle: pattern, caseSensitive: caseSensitive}
	if !caseSensitive {
		m.needle = strings.ToLower(pattern)
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(pattern))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
		m.folded = re
	}
	return m, nil
}

// Match returns every non-overlapping occurrence, left to right.
func (m substring) Match(name string) []Range {
	haystack := name
	if !m.caseSensitive {
		haystack = strings.ToLower(name)
		if len(haystack) != len(name) {
			return toRanges(m.folded.FindAllStringIndex(name, -1))
		}
	}
	var out []Range
	for start := 0; start <= len(haystack)-len(m.needle); {
		idx := strings.Index(haystack[start:], m.needle)
		if idx < 0 {
			break
		}
		pos := start + idx
		out = append(out, Range{Start: pos, End: pos + len(m.needle)})
		start = pos + len(m.needle)
	}
	return out
}

type extensions struct {
	suffixes      []string
	caseSensitive bool
}

func newExtensions(list string, caseSensitive bool) (Matcher, error) {
	var suffixes []string
	for _, ext := range strings.Split(list, ",") {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		suffixes = append(suffixes, ext)
	}
	if len(suffixes) == 0 {
		return nil, ErrEmptyPattern
	}
	return extensions{suffixes: suffixes, caseSensitive: caseSensitive}, nil
}

// Match returns a single range covering the first listed suffix name ends with.
func (m extensions) Match(name string) []Range {
	for _, suffix := range m.suffixes {
		if len(suffix) > len(name) {
			continue
		}
		tail := name[len(name)-len(suffix):]
		hit := tail == suffix
		if !m.caseSensitive {
			hit = strings.EqualFold(tail, suffix)
		}
		if hit {
			return []Range{{Start: len(name) - len(suffix), End: len(name)}}
		}
	}
	return nil
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) Match(name string) []Range {
	return toRanges(m.re.FindAllStringIndex(name, -1))
}

type globMatcher struct {
	pattern       string
	caseSensitive bool
}

// Match reports the whole name when it matches the glob.
func (m globMatcher) Match(name string) []Range {
	candidate := name
	if !m.caseSensitive {
		candidate = strings.ToLower(name)
	}
	ok, err := doublestar.Match(m.pattern, candidate)
	if err != nil || !ok {
		return nil
	}
	return []Range{{Start: 0, End: len(name)}}
}

func toRanges(idx [][]int) []Range {
	if len(idx) == 0 {
		return nil
	}
	out := make([]Range, 0, len(idx))
	for _, pair := range idx {
		out = append(out, Range{Start: pair[0], End: pair[1]})
	}
	return out
}
