package buildctx

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/podforge/podforge/lib/ignore"
	"github.com/podforge/podforge/lib/logger"
)

// MaterializeDirectory copies every file under root that the ignore
// spec keeps into a fresh temporary directory, mirroring the relative
// structure and preserving file mode and mtime. Directories matched by
// the spec are pruned without descending.
//
// Individual file failures are skipped and recorded so a single
// unreadable file does not sink the build; a structural failure (the
// walk itself breaking) removes the temporary directory and fails the
// whole operation. The caller owns the returned directory.
func MaterializeDirectory(ctx context.Context, root string, spec *ignore.Spec) (string, []string, error) {
	log := logger.FromContext(ctx)

	tmpDir, err := os.MkdirTemp("", "podforge-context-")
	if err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}

	var copied int
	var skipped []string

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
			if spec.Match(rel, true) {
				return fs.SkipDir
			}
			return os.MkdirAll(filepath.Join(tmpDir, rel), 0o755)
		}
		if !d.Type().IsRegular() || spec.Match(rel, false) {
			return nil
		}

		if err := copyFile(path, filepath.Join(tmpDir, rel)); err != nil {
			log.Warn("skipping file", "path", rel, "error", err)
			skipped = append(skipped, rel)
		} else {
			copied++
		}
		return nil
	})
	if walkErr != nil {
		os.RemoveAll(tmpDir)
		return "", nil, fmt.Errorf("walk context root: %w", walkErr)
	}

	log.Info("staged build context", "dir", tmpDir, "copied", copied, "skipped", len(skipped))
	return tmpDir, skipped, nil
}

// copyFile copies src to dst, preserving mode and mtime.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
