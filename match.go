package credsweep

import "io"

// DetectionType names where a rule fired: in a file's name, inside a file's
// content, or in a directory path.
type DetectionType string

const (
	DetectionFileName      DetectionType = "FileName"
	DetectionFileContent   DetectionType = "FileContent"
	DetectionDirectoryName DetectionType = "DirectoryName"
)

// Match represents one occurrence of a rule firing against a file or
// directory.
type Match struct {
	DetectionType DetectionType

	// Target is the path of the file or directory that matched.
	Target string

	// Context is the excerpt of the matching line (content matches only),
	// leading whitespace stripped and newlines removed.
	Context string

	// RuleName and Category identify the rule that fired. Category, not
	// name, disambiguates rules that share a name.
	RuleName string
	Category string

	// Line is the 1-based line number of a content match, 0 otherwise.
	Line int
}

// Reporter writes a result collection to w.
type Reporter interface {
	Write(w io.WriteCloser, matches []Match) error
}
