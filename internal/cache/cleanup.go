package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CleanupResult summarises a Cleanup run.
type CleanupResult struct {
	Files int
	Bytes int64
}

// Cleanup removes cached artifacts under the image and morph trees whose
// modification time is before cutoff, then prunes empty directories. With
// dryRun set nothing is removed but the result still counts what would be.
func Cleanup(l Layout, cutoff time.Time, dryRun bool) (CleanupResult, error) {
	var res CleanupResult
	for _, dir := range []string{l.ImagesDir(), l.MorphsDir()} {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if !info.ModTime().Before(cutoff) {
				return nil
			}
			res.Files++
			res.Bytes += info.Size()
			if dryRun {
				return nil
			}
			return os.Remove(path)
		})
		if err != nil {
			return res, err
		}
		if !dryRun {
			pruneEmpty(dir)
		}
	}
	return res, nil
}

// pruneEmpty removes empty directories below root, deepest first.
func pruneEmpty(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
}
