package buildctx

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/podforge/podforge/lib/ignore"
	"github.com/podforge/podforge/lib/logger"
)

// prunedDirs are ancillary trees that never belong in an embedded
// context, regardless of the ignore spec.
var prunedDirs = []string{".git", ".hg", ".svn", "node_modules", "__pycache__", ".venv"}

// Mapping is a build context flattened to relative path -> content.
// Binary files are base64 encoded and keyed with the Base64Suffix.
type Mapping struct {
	Entries map[string]string
	Skipped []string
}

// MaterializeMapping reads every kept file under root into a Mapping.
// Files over MaxEmbedFileSize are skipped and reported. Version
// control and dependency cache directories are pruned up front.
func MaterializeMapping(ctx context.Context, root string, spec *ignore.Spec) (*Mapping, error) {
	log := logger.FromContext(ctx)

	m := &Mapping{Entries: map[string]string{}}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if lo.Contains(prunedDirs, d.Name()) || spec.Match(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || spec.Match(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > MaxEmbedFileSize {
			log.Warn("file exceeds embed size ceiling, skipping", "path", rel, "size", info.Size())
			m.Skipped = append(m.Skipped, rel)
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if utf8.Valid(data) && !bytes.ContainsRune(data, 0) {
			m.Entries[rel] = string(data)
		} else {
			m.Entries[rel+Base64Suffix] = base64.StdEncoding.EncodeToString(data)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk context root: %w", walkErr)
	}

	log.Info("embedded build context", "files", len(m.Entries), "skipped", len(m.Skipped))
	return m, nil
}
