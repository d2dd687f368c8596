package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/credsweep/credsweep"
)

type CsvReporter struct {
}

var _ credsweep.Reporter = (*CsvReporter)(nil)

func (r *CsvReporter) Write(w io.WriteCloser, matches []credsweep.Match) error {
	if len(matches) == 0 {
		return nil
	}

	var (
		cw  = csv.NewWriter(w)
		err error
	)
	columns := []string{"DetectionType",
		"Category",
		"RuleName",
		"Target",
		"Line",
		"Context",
		"Fingerprint",
	}
	if err = cw.Write(columns); err != nil {
		return err
	}
	for _, m := range matches {
		row := []string{string(m.DetectionType),
			m.Category,
			m.RuleName,
			m.Target,
			strconv.Itoa(m.Line),
			m.Context,
			m.Fingerprint(),
		}
		if err = cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
