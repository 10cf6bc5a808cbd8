package domain

type ChangeKind string

const (
	ChangeTap     ChangeKind = "tap"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"

	// ChangeSnapshot is sent first on a new subscription.
	ChangeSnapshot ChangeKind = "snapshot"
)

// Change is the notification emitted by the store after an event document
// was written. Subscribers re-read the event when they need more.
type Change struct {
	EventID string     `json:"event_id"`
	OwnerID string     `json:"owner_id"`
	Kind    ChangeKind `json:"kind"`
	Total   int        `json:"total"`
	Version int64      `json:"version"`
}
