package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchBasicRules(t *testing.T) {
	spec := Parse("node_modules/\n*.log\n!important.log\n")

	require.False(t, spec.Empty())
	require.Equal(t, 3, spec.Patterns())

	require.True(t, spec.Match("node_modules", true))
	require.True(t, spec.Match("node_modules/x.js", false))
	require.True(t, spec.Match("app.log", false))
	require.False(t, spec.Match("important.log", false))
	require.False(t, spec.Match("src/main.py", false))
	require.False(t, spec.Match("Dockerfile", false))
}

func TestMatchCommentsAndBlanks(t *testing.T) {
	spec := Parse("# build output\n\nbuild/\ndist/\n*.tmp\n")

	require.Equal(t, 3, spec.Patterns())
	require.True(t, spec.Match("build/output.js", false))
	require.True(t, spec.Match("dist", true))
	require.True(t, spec.Match("temp.tmp", false))
	require.False(t, spec.Match("src/app.go", false))
}

func TestMatchLastRuleWins(t *testing.T) {
	spec := Parse("logs/\n!logs/keep.txt\n")

	require.True(t, spec.Match("logs", true))
	require.True(t, spec.Match("logs/debug.txt", false))
	require.False(t, spec.Match("logs/keep.txt", false))
}

func TestMatchDoubleStar(t *testing.T) {
	spec := Parse("**/cache\ndocs/**/draft.md\n")

	require.True(t, spec.Match("cache", true))
	require.True(t, spec.Match("a/b/cache", true))
	require.True(t, spec.Match("docs/v1/draft.md", false))
	require.False(t, spec.Match("docs/final.md", false))
}

func TestDirectoryOnlyPattern(t *testing.T) {
	spec := Parse("vendor/\n")

	require.True(t, spec.Match("vendor", true))
	// A plain file named like the directory rule is not matched.
	require.False(t, spec.Match("vendor", false))
}

func TestEmptyAndMalformedInput(t *testing.T) {
	require.True(t, Parse("").Empty())
	require.True(t, Parse("\n\n# only comments\n").Empty())

	// Not valid UTF-8: degrade to ignore-nothing rather than failing.
	spec := Parse(string([]byte{0xff, 0xfe, '*', '.', 'l', 'o', 'g'}))
	require.True(t, spec.Empty())
	require.False(t, spec.Match("app.log", false))

	var nilSpec *Spec
	require.True(t, nilSpec.Empty())
	require.False(t, nilSpec.Match("anything", false))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	// Absent file: ignore nothing.
	spec := Load(dir)
	require.True(t, spec.Empty())

	err := os.WriteFile(filepath.Join(dir, FileName), []byte("*.log\n"), 0o644)
	require.NoError(t, err)

	spec = Load(dir)
	require.False(t, spec.Empty())
	require.True(t, spec.Match("app.log", false))
}
