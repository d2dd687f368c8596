package report

import (
	"encoding/json"
	"io"

	"github.com/credsweep/credsweep"
)

type JsonReporter struct {
}

var _ credsweep.Reporter = (*JsonReporter)(nil)

type jsonMatch struct {
	DetectionType credsweep.DetectionType
	Category      string
	RuleName      string
	Target        string
	Line          int
	Context       string
	Fingerprint   string
}

func (t *JsonReporter) Write(w io.WriteCloser, matches []credsweep.Match) error {
	out := make([]jsonMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, jsonMatch{
			DetectionType: m.DetectionType,
			Category:      m.Category,
			RuleName:      m.RuleName,
			Target:        m.Target,
			Line:          m.Line,
			Context:       m.Context,
			Fingerprint:   m.Fingerprint(),
		})
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", " ")
	return encoder.Encode(out)
}
