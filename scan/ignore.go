package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/credsweep/credsweep"
	"github.com/credsweep/credsweep/logging"
)

// IgnoreFileName is looked up in the scanned directory when no ignore file is
// given explicitly.
const IgnoreFileName = ".credsweepignore"

// LoadIgnoreFile loads a list of match fingerprints to suppress. The file
// format supports:
// - Comments starting with #
// - Blank lines (ignored)
// - Fingerprints as printed in reports:
//   detection!category!rule!target!context-hash#Lline
func LoadIgnoreFile(path string) (map[string]struct{}, error) {
	ignore := make(map[string]struct{})

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	replacer := strings.NewReplacer("\\", "/")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip blank lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// the target may itself contain '!', so it is everything between the
		// third and the last separator
		s := strings.SplitN(line, "!", 4)
		if len(s) != 4 {
			logging.Warn().Str("fingerprint", line).Msg("invalid ignore file entry")
			continue
		}
		cut := strings.LastIndex(s[3], "!")
		if cut < 0 || !strings.Contains(s[3][cut:], "#L") {
			logging.Warn().Str("fingerprint", line).Msg("invalid ignore file entry")
			continue
		}
		// Normalize the path separators
		target := filepath.FromSlash(replacer.Replace(s[3][:cut]))
		ignore[strings.Join(s[:3], "!")+"!"+target+s[3][cut:]] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ignore, nil
}

// LoadIgnoreFiles loads the explicit ignore file, if any, and the ignore file
// at the root of the scanned directory, and merges them.
func LoadIgnoreFiles(ignorePath string, root string) map[string]struct{} {
	ignore := make(map[string]struct{})

	// Helper to try loading an ignore file
	tryLoad := func(path string) {
		if _, err := os.Stat(path); err == nil {
			logging.Debug().Str("path", path).Msg("loading ignore file")
			if loaded, err := LoadIgnoreFile(path); err == nil {
				for k, v := range loaded {
					ignore[k] = v
				}
			} else {
				logging.Warn().Err(err).Str("path", path).Msg("failed to load ignore file")
			}
		}
	}

	if ignorePath != "" {
		if info, err := os.Stat(ignorePath); err == nil && info.IsDir() {
			tryLoad(filepath.Join(ignorePath, IgnoreFileName))
		} else {
			tryLoad(ignorePath)
		}
	}
	tryLoad(filepath.Join(root, IgnoreFileName))

	return ignore
}

// filterIgnored drops the matches whose fingerprint is in ignore.
func filterIgnored(matches []credsweep.Match, ignore map[string]struct{}) []credsweep.Match {
	if len(ignore) == 0 {
		return matches
	}
	kept := matches[:0:0]
	for _, m := range matches {
		if _, ok := ignore[m.Fingerprint()]; ok {
			logging.Trace().Str("fingerprint", m.Fingerprint()).Msg("ignoring match")
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
