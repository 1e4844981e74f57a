// Package notification defines outbound message jobs.
package notification

import "time"

// Kind classifies what a notification reports.
type Kind string

const (
	KindSettlementSuccess Kind = "settlement_success"
	KindSettlementFailure Kind = "settlement_failure"
	KindPaymentVerified   Kind = "payment_verified"
	KindReEngagement      Kind = "re_engagement"
	KindBroadcast         Kind = "broadcast"
)

// Job is a queued outbound message. Delivery is at-least-once; message text
// is idempotent status copy so duplicates are acceptable.
type Job struct {
	ID        string
	UserID    string
	Message   string
	Kind      Kind
	CreatedAt time.Time
}
