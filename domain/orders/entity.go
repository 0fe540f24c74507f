package orders

import (
	"time"

	"github.com/uptrace/bun"
)

// Order is a settlement instruction received from the queue. ProcessedAt is
// set exactly once; orders are never deleted.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID          string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Source      string     `bun:"source,notnull"`
	MessageID   string     `bun:"message_id,notnull,unique"`
	Payload     []byte     `bun:"payload,type:bytea,notnull"`
	ReceivedAt  time.Time  `bun:"received_at,notnull,default:now()"`
	ProcessedAt *time.Time `bun:"processed_at"`
}

// Processed reports whether the order has been turned into a report.
func (o *Order) Processed() bool {
	return o.ProcessedAt != nil
}
