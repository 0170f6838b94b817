package models

import (
	"strconv"
	"time"
)

// Message is one directed text communication between two users, keyed by
// email. Immutable once inserted; there is no edit or delete.
//
// Timestamp travels as a numeric string of epoch millis to match the
// client-side representation. Token is an optional client-generated
// idempotency token, stored verbatim so clients can match their own sends
// exactly instead of by timing heuristics.
type Message struct {
	ID        string `bson:"_id,omitempty" json:"id"`
	Sender    string `bson:"sender" json:"sender"`
	Receiver  string `bson:"receiver" json:"receiver"`
	Content   string `bson:"content" json:"content"`
	Timestamp string `bson:"timestamp" json:"timestamp"`
	Token     string `bson:"token,omitempty" json:"token,omitempty"`
}

// SentAt parses the epoch-millis timestamp. Returns the zero time if the
// field is malformed.
func (m Message) SentAt() time.Time {
	ms, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// NowMillis formats t as the wire timestamp.
func NowMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
