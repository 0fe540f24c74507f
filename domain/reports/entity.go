package reports

import (
	"time"

	"github.com/uptrace/bun"
)

// Format of a rendered variant.
const (
	FormatPDF = "pdf"
	FormatCSV = "csv"
)

// Report is the settlement document generated from one order.
// ArchivedAt and CorrelationID are the only fields changed after insert,
// and CorrelationID is set at most once.
type Report struct {
	bun.BaseModel `bun:"table:reports,alias:r"`

	ID            string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	OrderID       string     `bun:"order_id,type:uuid,notnull,unique"`
	OrgNumber     string     `bun:"org_number,notnull"`
	Type          string     `bun:"type,notnull"`
	ValueDate     time.Time  `bun:"value_date,type:date,notnull"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:now()"`
	ArchivedAt    *time.Time `bun:"archived_at"`
	CorrelationID *string    `bun:"correlation_id"`
}

// Archived reports whether the report has been archived.
func (r *Report) Archived() bool { return r.ArchivedAt != nil }

// Variant is one rendered format of a report. Variants are immutable.
type Variant struct {
	bun.BaseModel `bun:"table:variants,alias:v"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	ReportID  string    `bun:"report_id,type:uuid,notnull"`
	Format    string    `bun:"format,notnull"`
	Filename  string    `bun:"filename,notnull"`
	Content   []byte    `bun:"content,type:bytea,notnull"`
	Size      int64     `bun:"size,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()"`
}
