package buildctx

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/podforge/podforge/lib/ignore"
)

func TestMaterializeMappingTextAndBinary(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Dockerfile":  "FROM scratch\n",
		"src/main.py": "print('hi')\n",
	})
	binary := []byte{0x00, 0x01, 0xff, 0xfe}
	require.NoError(t, os.WriteFile(filepath.Join(root, "logo.png"), binary, 0o644))

	m, err := MaterializeMapping(context.Background(), root, ignore.Parse(""))
	require.NoError(t, err)
	require.Empty(t, m.Skipped)

	require.Equal(t, "FROM scratch\n", m.Entries["Dockerfile"])
	require.Equal(t, "print('hi')\n", m.Entries["src/main.py"])

	encoded, ok := m.Entries["logo.png"+Base64Suffix]
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.Equal(t, binary, decoded)
}

func TestMaterializeMappingRespectsIgnoreSpec(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Dockerfile": "FROM scratch\n",
		"app.log":    "noise\n",
		"build/x.js": "out\n",
	})

	m, err := MaterializeMapping(context.Background(), root, ignore.Parse("*.log\nbuild/\n"))
	require.NoError(t, err)

	require.Contains(t, m.Entries, "Dockerfile")
	require.NotContains(t, m.Entries, "app.log")
	require.NotContains(t, m.Entries, "build/x.js")
}

func TestMaterializeMappingPrunesAncillaryDirs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Dockerfile":            "FROM scratch\n",
		".git/config":           "[core]\n",
		"node_modules/pkg/a.js": "x\n",
		"src/__pycache__/m.pyc": "y\n",
		"src/app.py":            "print('hi')\n",
	})

	m, err := MaterializeMapping(context.Background(), root, ignore.Parse(""))
	require.NoError(t, err)

	require.Contains(t, m.Entries, "Dockerfile")
	require.Contains(t, m.Entries, "src/app.py")
	for path := range m.Entries {
		require.False(t, strings.Contains(path, ".git/"), "vcs entry leaked: %s", path)
		require.False(t, strings.Contains(path, "node_modules/"), "dep cache leaked: %s", path)
		require.False(t, strings.Contains(path, "__pycache__/"), "cache leaked: %s", path)
	}
}

func TestMaterializeMappingSizeCeiling(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"Dockerfile": "FROM scratch\n"})

	big := strings.Repeat("x", MaxEmbedFileSize+1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "huge.bin"), []byte(big), 0o644))

	m, err := MaterializeMapping(context.Background(), root, ignore.Parse(""))
	require.NoError(t, err)

	require.NotContains(t, m.Entries, "huge.bin")
	require.NotContains(t, m.Entries, "huge.bin"+Base64Suffix)
	require.Equal(t, []string{"huge.bin"}, m.Skipped)
}
