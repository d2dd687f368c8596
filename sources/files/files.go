package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/credsweep/credsweep/logging"
)

// Listing is the result of one walk over a tree.
type Listing struct {
	// Directories includes the root itself.
	Directories []string
	Files       []string
}

// Tree enumerates the directories and regular files beneath Root.
//
// Directory symlinks are never followed, so symlink cycles cannot occur; the
// trade-off is that trees reachable only through a directory symlink are not
// scanned. Symlinks to regular files are listed under their own path.
type Tree struct {
	Root string

	// ExcludeNames are file basenames that are never listed (the scanner's
	// own executable, for instance).
	ExcludeNames []string

	// MaxFileSize skips files larger than this many bytes when > 0.
	MaxFileSize int64
}

// Enumerate walks the tree once. Unreadable directories and files are logged
// and skipped; only a missing or unreadable root is an error. Both lists are
// sorted so repeated runs over an unmodified tree yield the same order.
func (t Tree) Enumerate(ctx context.Context) (Listing, error) {
	info, err := os.Stat(t.Root)
	if err != nil {
		return Listing{}, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return Listing{}, fmt.Errorf("%s is not a directory", t.Root)
	}

	var (
		mu      sync.Mutex
		listing Listing
	)
	root := filepath.Clean(t.Root)
	listing.Directories = append(listing.Directories, t.Root)

	// fastwalk calls the walk func from several goroutines
	conf := &fastwalk.Config{
		Follow: false,
	}
	err = fastwalk.Walk(conf, t.Root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger := logging.With().Str("path", path).Logger()

		if err != nil {
			if os.IsPermission(err) {
				logger.Warn().Err(errors.New("permission denied")).Msg("skipping directory")
				return fastwalk.SkipDir
			}
			logger.Warn().Err(err).Msg("skipping")
			return nil
		}

		if d.IsDir() {
			if filepath.Clean(path) == root {
				return nil
			}
			mu.Lock()
			listing.Directories = append(listing.Directories, path)
			mu.Unlock()
			return nil
		}

		if slices.Contains(t.ExcludeNames, d.Name()) {
			logger.Debug().Msg("skipping excluded file")
			return nil
		}

		var size int64
		switch {
		case d.Type().IsRegular():
			if t.MaxFileSize > 0 {
				fi, err := d.Info()
				if err != nil {
					logger.Warn().Err(err).Msg("skipping file: could not get info")
					return nil
				}
				size = fi.Size()
			}
		case d.Type() == fs.ModeSymlink:
			fi, err := os.Stat(path)
			if err != nil {
				logger.Warn().Err(err).Msg("skipping symlink: could not evaluate")
				return nil
			}
			if !fi.Mode().IsRegular() {
				logger.Debug().Msg("skipping symlink: target is not a regular file")
				return nil
			}
			size = fi.Size()
		default:
			// devices, sockets and fifos would block or never end
			logger.Debug().Str("mode", d.Type().String()).Msg("skipping irregular file")
			return nil
		}

		if t.MaxFileSize > 0 && size > t.MaxFileSize {
			logger.Warn().Msgf(
				"skipping file: too large max_size=%dMB, size=%dMB",
				t.MaxFileSize/1_000_000, size/1_000_000,
			)
			return nil
		}

		mu.Lock()
		listing.Files = append(listing.Files, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return Listing{}, err
	}

	slices.Sort(listing.Directories[1:])
	slices.Sort(listing.Files)
	return listing, nil
}

// ListDirectories returns root and every directory beneath it.
func ListDirectories(ctx context.Context, root string) ([]string, error) {
	t := Tree{Root: root}
	l, err := t.Enumerate(ctx)
	return l.Directories, err
}

// ListFiles returns every regular file beneath root whose basename is not in
// excludeNames.
func ListFiles(ctx context.Context, root string, excludeNames ...string) ([]string, error) {
	t := Tree{Root: root, ExcludeNames: excludeNames}
	l, err := t.Enumerate(ctx)
	return l.Files, err
}
