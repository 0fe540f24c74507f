package jobs

import "github.com/uptrace/bun"

// SkipLocked is the row lock taken by every claim. Rows locked by another
// open transaction are invisible to the claimant instead of blocking it.
const SkipLocked = "UPDATE SKIP LOCKED"

// ClaimOne restricts q to a single row locked with SkipLocked. The lock is
// held until the surrounding transaction ends, so q must run inside one.
func ClaimOne(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Limit(1).For(SkipLocked)
}

// TruncateError shortens an error message for storage.
func TruncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
