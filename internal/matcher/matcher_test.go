package matcher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMatch(t *testing.T, pattern string, kind PatternType, caseSensitive bool, name string) []Range {
	t.Helper()
	m, err := Compile(pattern, kind, caseSensitive)
	require.NoError(t, err)
	return m.Match(name)
}

func TestSimpleMatching(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		input         string
		pattern       string
		caseSensitive bool
		want          []Range
	}{
		{"case insensitive", "MyFile.txt", "file", false, []Range{{2, 6}}},
		{"case sensitive miss", "MyFile.txt", "file", true, nil},
		{"case sensitive hit", "MyFile.txt", "File", true, []Range{{2, 6}}},
		{"multiple", "test_test.txt", "test", false, []Range{{0, 4}, {5, 9}}},
		{"no match", "document.pdf", "xyz", false, nil},
		{"non overlapping", "aaaa", "aa", true, []Range{{0, 2}, {2, 4}}},
		{"prefix", "file1.txt", "file", false, []Range{{0, 4}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, mustMatch(t, tc.pattern, Simple, tc.caseSensitive, tc.input))
		})
	}
}

func TestSimpleMatchingFoldsWhenLengthChanges(t *testing.T) {
	t.Parallel()

	// "İ" lower-cases to a longer byte sequence; ranges must still index the
	// original name.
	name := "İmage-photo.png"
	got := mustMatch(t, "photo", Simple, false, name)
	require.Len(t, got, 1)
	require.Equal(t, "photo", name[got[0].Start:got[0].End])
}

func TestExtensionMatching(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Range{{4, 8}}, mustMatch(t, ".txt", Extension, false, "file.txt"))
	require.Equal(t, []Range{{4, 8}}, mustMatch(t, "txt", Extension, false, "file.txt"))
	require.NotEmpty(t, mustMatch(t, ".txt, .log, .tmp", Extension, false, "file.log"))
	require.Empty(t, mustMatch(t, ".txt, .log", Extension, false, "file.doc"))
	require.NotEmpty(t, mustMatch(t, ".txt", Extension, false, "file.TXT"))
	require.Empty(t, mustMatch(t, ".txt", Extension, true, "file.TXT"))
	require.NotEmpty(t, mustMatch(t, ".TXT", Extension, true, "file.TXT"))
	// The first listed suffix that fits wins.
	require.Equal(t, []Range{{11, 14}}, mustMatch(t, "gz, tar.gz", Extension, true, "archive.tar.gz"))
	require.Equal(t, []Range{{7, 14}}, mustMatch(t, "tar.gz, gz", Extension, true, "archive.tar.gz"))
	// Blank entries are ignored.
	require.Equal(t, []Range{{1, 5}}, mustMatch(t, ", ,txt", Extension, false, "a.txt"))
}

func TestExtensionListOfBlanksIsEmpty(t *testing.T) {
	t.Parallel()

	_, err := Compile(" , ,", Extension, false)
	require.ErrorIs(t, err, ErrEmptyPattern)
}

func TestRegexMatching(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Range{{4, 7}}, mustMatch(t, `\d+`, Regex, false, "file123.txt"))
	require.Equal(t, []Range{{3, 6}, {9, 12}}, mustMatch(t, `\d+`, Regex, false, "abc123def456.txt"))
	require.NotEmpty(t, mustMatch(t, "myfile", Regex, false, "MyFile.txt"))
	require.Empty(t, mustMatch(t, "myfile", Regex, true, "MyFile.txt"))
	require.Empty(t, mustMatch(t, `\d+`, Regex, false, "abcdef.txt"))
}

func TestRegexInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := Compile("[invalid", Regex, false)
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestGlobMatching(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Range{{0, 9}}, mustMatch(t, "*.tmp", Glob, true, "cache.tmp"))
	require.Empty(t, mustMatch(t, "*.tmp", Glob, true, "cache.TMP"))
	require.NotEmpty(t, mustMatch(t, "*.tmp", Glob, false, "cache.TMP"))
	require.NotEmpty(t, mustMatch(t, "report-{2023,2024}.csv", Glob, true, "report-2024.csv"))

	_, err := Compile("[abc", Glob, true)
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestCompileRejectsEmptyPattern(t *testing.T) {
	t.Parallel()

	for _, kind := range []PatternType{Simple, Extension, Regex, Glob} {
		_, err := Compile("   ", kind, false)
		require.ErrorIs(t, err, ErrEmptyPattern, kind)
	}
	_, err := Compile("x", "fuzzy", false)
	require.Error(t, err)
}

func TestParsePatternType(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]PatternType{
		"":          Simple,
		"SIMPLE":    Simple,
		"extension": Extension,
		"ext":       Extension,
		"regex":     Regex,
		"glob":      Glob,
	} {
		got, err := ParsePatternType(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParsePatternType("nope")
	require.Error(t, err)
}

func TestRangeJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal([]Range{{2, 6}})
	require.NoError(t, err)
	require.JSONEq(t, `[[2,6]]`, string(data))

	var back []Range
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, []Range{{2, 6}}, back)
}

// A compiled matcher is shared by the parallel match phase.
func TestMatcherSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	m, err := Compile(`\d+`, Regex, false)
	require.NoError(t, err)
	done := make(chan []Range, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- m.Match("a1b22c333") }()
	}
	for i := 0; i < 8; i++ {
		require.Equal(t, []Range{{1, 2}, {3, 5}, {6, 9}}, <-done)
	}
}
