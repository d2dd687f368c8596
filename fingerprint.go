package credsweep

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Fingerprint returns a deterministic identifier for the match. Two scans of
// an unmodified tree produce the same fingerprints.
//
// # Format
//
//	{detection_type}!{category}!{rule_name}!{target}!{context_hash}#L{line}
//
// Examples:
//
//	FileContent!Keys!RSA private key!home/.ssh/id_rsa!1b7c0f3e#L1
//	DirectoryName!DirectoryName!Credential!/srv/credentials!00000000#L0
func (m Match) Fingerprint() string {
	return fmt.Sprintf("%s!%s!%s!%s!%s#L%d",
		m.DetectionType,
		m.Category,
		m.RuleName,
		m.Target,
		contextHash(m.Context),
		m.Line,
	)
}

// contextHash returns the first 8 hex characters of the XXH3-64 hash of s,
// or eight zeros for an empty context.
func contextHash(s string) string {
	if s == "" {
		return "00000000"
	}
	h := xxh3.HashString(s)
	return fmt.Sprintf("%016x", h)[:8]
}
