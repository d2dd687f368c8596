package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/credsweep/credsweep"
	"github.com/credsweep/credsweep/logging"
	"github.com/credsweep/credsweep/sources/files"
	"github.com/fatih/semgroup"
)

var ErrInvalidThreads = errors.New("thread count must be at least 1")

// Enumerator lists the directories and files of a tree.
type Enumerator interface {
	Enumerate(ctx context.Context) (files.Listing, error)
}

// Shard is a contiguous slice of the file list owned by one worker.
type Shard struct {
	Index int
	Files []string
}

// Partition splits files into n contiguous shards whose sizes differ by at
// most one; the first len(files)%n shards get the extra file. Every file
// lands in exactly one shard.
func Partition(files []string, n int) []Shard {
	if n < 1 {
		n = 1
	}
	shards := make([]Shard, n)
	size, rem := len(files)/n, len(files)%n
	start := 0
	for i := range shards {
		end := start + size
		if i < rem {
			end++
		}
		shards[i] = Shard{Index: i, Files: files[start:end:end]}
		start = end
	}
	return shards
}

type Pipeline struct {
	// resource enumerator
	Source Enumerator

	// shared, read-only across workers
	Scanner *Scanner

	// Threads is the number of concurrent file workers.
	Threads int

	// fingerprints of matches to drop from the results
	ignore map[string]struct{}
}

// SetIgnore installs the fingerprints of matches Run must not report.
func (p *Pipeline) SetIgnore(ignore map[string]struct{}) {
	p.ignore = ignore
}

func NewPipeline(src Enumerator, scanner *Scanner, threads int) *Pipeline {
	return &Pipeline{
		Source:  src,
		Scanner: scanner,
		Threads: threads,
	}
}

type shardResult struct {
	index   int
	matches []credsweep.Match
}

// Run enumerates the tree, scans directory names, then scans files with one
// worker per shard and waits for all of them. Results are ordered directory
// matches first, then file matches grouped by shard index.
//
// If ctx is cancelled the matches of the work that did complete are returned
// together with the context error.
func (p *Pipeline) Run(ctx context.Context) ([]credsweep.Match, error) {
	if p.Threads < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreads, p.Threads)
	}
	start := time.Now()

	logging.Info().Msg("searching subdirectories")
	listing, err := p.Source.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	logging.Info().Int("directories", len(listing.Directories)).Msg("scanning directory names")
	results := p.Scanner.ScanDirectories(listing.Directories)

	logging.Info().Int("files", len(listing.Files)).Int("threads", p.Threads).Msg("scanning files")
	shards := Partition(listing.Files, p.Threads)

	out := make(chan shardResult, len(shards))
	sg := semgroup.NewGroup(ctx, int64(p.Threads))
	for _, shard := range shards {
		sg.Go(func() error {
			matches, err := p.Scanner.ScanFiles(ctx, shard)
			out <- shardResult{index: shard.Index, matches: matches}
			return err
		})
		logging.Debug().Int("shard", shard.Index+1).Int("files", len(shard.Files)).Msg("started worker")
	}
	waitErr := sg.Wait()
	close(out)

	byShard := make([][]credsweep.Match, len(shards))
	for r := range out {
		byShard[r.index] = r.matches
	}
	for _, matches := range byShard {
		results = append(results, matches...)
	}
	if n := len(results); len(p.ignore) > 0 {
		results = filterIgnored(results, p.ignore)
		logging.Debug().Int("ignored", n-len(results)).Msg("applied ignore file")
	}

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, ctxErr
		}
		return results, waitErr
	}

	logging.Info().
		Int("matches", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("finished scanning files")
	return results, nil
}
