package notifications

import (
	"time"

	"github.com/uptrace/bun"
)

// Request is a pending obligation to tell one downstream system about a
// report. It is deleted once delivered; until then AttemptCount and
// NextAttemptAt only grow.
type Request struct {
	bun.BaseModel `bun:"table:notification_requests,alias:nr"`

	ID            string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	ReportID      string    `bun:"report_id,type:uuid,notnull"`
	System        string    `bun:"system,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	AttemptCount  int       `bun:"attempt_count,notnull,default:0"`
	NextAttemptAt time.Time `bun:"next_attempt_at,notnull"`
	LastError     *string   `bun:"last_error"`
}
