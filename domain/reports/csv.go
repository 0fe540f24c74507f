package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"time"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/settlement"
)

// CSVRenderer renders the settlement lines as semicolon separated text.
type CSVRenderer struct{}

var csvHeader = []string{
	"orgnummer", "kontonummer", "valutadato", "underenhet", "personId",
	"belop", "periodeFra", "periodeTil", "kategori",
}

func (CSVRenderer) Format() string { return FormatCSV }

// Render writes one row per settlement line after a header row.
func (CSVRenderer) Render(_ context.Context, _ *Report, s *settlement.Settlement) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	valueDate := s.ValueDate.Format(time.DateOnly)
	for _, l := range s.Lines {
		err := w.Write([]string{
			s.OrgNumber,
			s.BankAccount,
			valueDate,
			l.OrgSubUnit,
			l.PersonID,
			l.Amount.String(),
			l.PeriodFrom.Format(time.DateOnly),
			l.PeriodTo.Format(time.DateOnly),
			l.CategoryCode,
		})
		if err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
