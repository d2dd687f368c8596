package scan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
	"github.com/credsweep/credsweep"
	"github.com/credsweep/credsweep/config"
	"github.com/credsweep/credsweep/logging"
	"github.com/h2non/filetype"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// progressInterval is how many files a worker checks between progress lines.
const progressInterval = 100

// cancelCheckLines is how many lines of a single file are read between
// context checks.
const cancelCheckLines = 4096

// sniffLen is the header length filetype needs to identify a file.
const sniffLen = 262

type Scanner struct {
	Catalog *config.Catalog

	// IgnoredExtensions are lower-case suffixes (".log") of files that are
	// skipped entirely.
	IgnoredExtensions []string

	// SkipBinary skips the content of files whose header identifies a known
	// binary format (images, archives, executables...).
	SkipBinary bool

	// prefilter is a ahocorasick struct used for doing efficient string
	// matching given a set of words (keywords from the rules in the catalog)
	prefilter *ahocorasick.Trie
}

type Option func(*Scanner)

func WithIgnoredExtensions(exts ...string) Option {
	return func(s *Scanner) {
		s.IgnoredExtensions = append(s.IgnoredExtensions, exts...)
	}
}

func WithSkipBinary(skip bool) Option {
	return func(s *Scanner) {
		s.SkipBinary = skip
	}
}

func NewScanner(cat *config.Catalog, opts ...Option) *Scanner {
	s := &Scanner{
		Catalog:   cat,
		prefilter: ahocorasick.NewTrieBuilder().AddStrings(cat.Keywords()).Build(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ignored reports whether the lower-cased basename ends with an ignored
// extension.
func (s *Scanner) Ignored(name string) bool {
	for _, ext := range s.IgnoredExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// ScanFile checks the name and content of one file. Content is read line by
// line; bytes that are not valid UTF-8 are replaced rather than failing the
// file, and UTF-16 files with a byte order mark are decoded.
//
// Lines end at "\n", "\r\n" or a lone "\r"; every line is handed to the
// content rules with a single trailing "\n".
//
// A file that cannot be opened or read contributes no matches at all, not
// even for its name, and err is non-nil.
func (s *Scanner) ScanFile(ctx context.Context, path string) ([]credsweep.Match, error) {
	name := strings.ToLower(filepath.Base(path))
	if s.Ignored(name) {
		logging.Trace().Str("path", path).Msg("skipping file: ignored extension")
		return nil, nil
	}

	var nameMatches []credsweep.Match
	for _, r := range s.Catalog.Rules(config.FileName) {
		if r.Regex.MatchString(name) {
			nameMatches = append(nameMatches, credsweep.Match{
				DetectionType: credsweep.DetectionFileName,
				Target:        path,
				RuleName:      r.Name,
				Category:      string(r.Category),
			})
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if s.SkipBinary {
		binary, err := isBinary(f)
		if err != nil {
			return nil, err
		}
		if binary {
			logging.Debug().Str("path", path).Msg("skipping content: binary file")
			return nameMatches, nil
		}
	}

	var contentMatches []credsweep.Match
	reader := bufio.NewReader(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	lineNo := 0
	for {
		chunk, err := reader.ReadString('\n')
		for _, line := range splitLines(chunk) {
			lineNo++
			if lineNo%cancelCheckLines == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			contentMatches = append(contentMatches, s.ScanLine(path, line, lineNo)...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", lineNo+1, err)
		}
	}

	return append(nameMatches, contentMatches...), nil
}

// splitLines breaks a chunk ending in at most one "\n" into lines, treating a
// lone "\r" as a line break too. Each returned line ends in "\n" unless it is
// the unterminated tail of the file.
func splitLines(chunk string) []string {
	if chunk == "" {
		return nil
	}
	chunk = strings.ReplaceAll(chunk, "\r\n", "\n")
	if !strings.Contains(chunk, "\r") {
		return []string{chunk}
	}
	lines := strings.SplitAfter(chunk, "\r")
	out := lines[:0]
	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "\r") {
			line = line[:len(line)-1] + "\n"
		}
		out = append(out, line)
	}
	return out
}

// ScanLine tests one line (including its trailing newline, if any) against
// every content rule in catalog order. A rule contributes at most one match
// per line; every matching rule contributes one.
func (s *Scanner) ScanLine(path, line string, lineNo int) []credsweep.Match {
	rules := s.Catalog.ContentRules()
	candidates := s.candidates(line, len(rules))

	var matches []credsweep.Match
	for i, r := range rules {
		if !candidates[i] {
			continue
		}
		loc := r.Regex.FindStringIndex(line)
		if loc == nil {
			continue
		}
		matches = append(matches, credsweep.Match{
			DetectionType: credsweep.DetectionFileContent,
			Target:        path,
			Context:       extractContext(line, loc, contextChars),
			RuleName:      r.Name,
			Category:      string(r.Category),
			Line:          lineNo,
		})
	}
	return matches
}

// candidates marks the content rules worth evaluating against line: rules
// without keywords, and rules with a keyword present in the line.
func (s *Scanner) candidates(line string, n int) []bool {
	marked := make([]bool, n)
	for _, i := range s.Catalog.UnconditionalRules() {
		marked[i] = true
	}
	for _, m := range s.prefilter.MatchString(strings.ToLower(line)) {
		for _, i := range s.Catalog.RulesForKeyword(string(m.Match())) {
			marked[i] = true
		}
	}
	return marked
}

// ScanFiles is one worker: it scans the files of a shard in order, logging
// and skipping files that cannot be read. The context is checked between
// files; on cancellation the matches gathered so far are returned with the
// context error.
func (s *Scanner) ScanFiles(ctx context.Context, shard Shard) ([]credsweep.Match, error) {
	logger := logging.With().Int("shard", shard.Index+1).Logger()
	total := len(shard.Files)

	var matches []credsweep.Match
	for i, path := range shard.Files {
		if err := ctx.Err(); err != nil {
			logger.Warn().Int("checked", i).Int("total", total).Msg("shard cancelled")
			return matches, err
		}

		checked := i + 1
		if checked%progressInterval == 0 {
			logger.Info().Msgf("%d/%d files checked (%.2f %%)", checked, total, float64(checked)/float64(total)*100)
		}

		found, err := s.ScanFile(ctx, path)
		if err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Str("path", path).Msg("error while reading file")
		}
		for _, m := range found {
			if m.DetectionType == credsweep.DetectionFileContent {
				logger.Info().Str("path", path).Str("rule", m.RuleName).Int("line", m.Line).Msg("found credentials")
			}
		}
		matches = append(matches, found...)
	}

	logger.Debug().Int("files", total).Int("matches", len(matches)).Msg("shard finished")
	return matches, nil
}

// ScanDirectories checks every directory path against the directory-name
// rules.
func (s *Scanner) ScanDirectories(dirs []string) []credsweep.Match {
	var matches []credsweep.Match
	rules := s.Catalog.Rules(config.DirectoryName)
	for _, dir := range dirs {
		for _, r := range rules {
			if r.Regex.MatchString(dir) {
				matches = append(matches, credsweep.Match{
					DetectionType: credsweep.DetectionDirectoryName,
					Target:        dir,
					RuleName:      r.Name,
					Category:      string(r.Category),
				})
			}
		}
	}
	return matches
}

// isBinary sniffs the header of f and rewinds it.
func isBinary(f *os.File) (bool, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	kind, _ := filetype.Match(head[:n])
	return kind != filetype.Unknown, nil
}
