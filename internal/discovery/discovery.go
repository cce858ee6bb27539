// Package discovery lists the files under a data directory that a build
// should index.
package discovery

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// DefaultPattern selects plain text files.
const DefaultPattern = "*.txt"

type Options struct {
	// Pattern is matched case-insensitively against each file's base name.
	Pattern       string
	Recursive     bool
	IncludeHidden bool
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
}

// File is a discovered input file.
type File struct {
	Path string
	Size int64
}

// Paths returns the path of every file, in order.
func Paths(files []File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// Find returns the regular files under root whose base name matches
// opts.Pattern, sorted by path. Directories are never returned and hidden
// entries are skipped unless opts.IncludeHidden is set. Readability is not
// checked here, so an unreadable file is still returned and can be reported
// by the caller.
func Find(ctx context.Context, root string, opts Options) ([]File, error) {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	pattern := strings.ToLower(opts.Pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "invalid file pattern %q", opts.Pattern)
	}

	info, err := opts.Fs.Stat(root)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInput, err, "reading data directory")
	}
	if !info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrInput, "data directory %s is not a directory", root)
	}

	d := &finder{opts: opts, pattern: pattern}
	if err := d.scan(ctx, root); err != nil {
		return nil, err
	}
	sort.Slice(d.files, func(i, j int) bool { return d.files[i].Path < d.files[j].Path })
	return d.files, nil
}

type finder struct {
	opts    Options
	pattern string
	files   []File
}

func (d *finder) scan(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := afero.ReadDir(d.opts.Fs, dir)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInput, err, "listing "+dir)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !d.opts.IncludeHidden && isHidden(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if entry.Mode()&os.ModeSymlink != 0 {
			// Links to files are followed. Dangling links and links to
			// directories are ignored so a walk cannot cycle.
			resolved, err := d.opts.Fs.Stat(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return apperrors.Wrap(apperrors.ErrInput, err, "resolving "+path)
			}
			if resolved.IsDir() {
				continue
			}
			entry = resolved
		}
		if entry.IsDir() {
			if d.opts.Recursive {
				if err := d.scan(ctx, path); err != nil {
					return err
				}
			}
			continue
		}
		if !entry.Mode().IsRegular() {
			continue
		}
		if ok, _ := doublestar.Match(d.pattern, strings.ToLower(name)); !ok {
			continue
		}
		d.files = append(d.files, File{Path: path, Size: entry.Size()})
	}
	return nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
