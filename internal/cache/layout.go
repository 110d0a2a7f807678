// Package cache maps latents and rendering parameters onto a sharded directory
// tree. A file's existence is the cache record: nothing is indexed, nothing is
// updated in place and nothing is evicted except by Cleanup.
package cache

import (
	"fmt"
	"path/filepath"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/render"
)

// Layout is the on-disk arrangement under a data root.
type Layout struct {
	Root string
}

func (l Layout) ImagesDir() string { return filepath.Join(l.Root, "outputImages") }
func (l Layout) MorphsDir() string { return filepath.Join(l.Root, "outputMorphs") }
func (l Layout) AssetsDir() string { return filepath.Join(l.Root, "assets") }

// ImagePath is <root>/outputImages/<shard...>/<name>_<dim>.<ext>.
func (l Layout) ImagePath(p latent.Proxy, dim int, f render.Format) string {
	parts := append([]string{l.ImagesDir()}, p.Shard()...)
	parts = append(parts, fmt.Sprintf("%s_%d.%s", latent.FileStem(p.Name()), dim, f.Ext()))
	return filepath.Join(parts...)
}

// MorphRoot is the directory shared by every artifact of a from/to pair:
// <root>/outputMorphs/<shardA...>/<shardB...>/from <A> to <B>.
func (l Layout) MorphRoot(from, to latent.Proxy) string {
	parts := []string{l.MorphsDir()}
	parts = append(parts, from.Shard()...)
	parts = append(parts, to.Shard()...)
	parts = append(parts, fmt.Sprintf("from %s to %s", latent.FileStem(from.Name()), latent.FileStem(to.Name())))
	return filepath.Join(parts...)
}
