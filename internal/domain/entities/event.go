package entities

import "time"

// EventKind identifies a progress notification from the engine
type EventKind string

// Engine progress events
const (
	EventCheckStarted   EventKind = "check_started"
	EventItemChecked    EventKind = "item_checked"
	EventCheckFinished  EventKind = "check_finished"
	EventUpdateStarted  EventKind = "update_started"
	EventItemUpdated    EventKind = "item_updated"
	EventAssetVerified  EventKind = "asset_verified"
	EventItemFailed     EventKind = "item_failed"
	EventSummaryReady   EventKind = "summary_ready"
	EventStoreSaved     EventKind = "store_saved"
	EventItemVerified   EventKind = "item_verified"
	EventVerifyFinished EventKind = "verify_finished"
)

// Event is a structured progress notification. Front ends subscribe to these
// instead of driving network logic themselves.
type Event struct {
	Kind       EventKind
	Coordinate string
	Message    string
	Status     CheckStatus
	Asset      *AssetVerification
	Summary    *ChangeSummary
	Err        error
	Time       time.Time
}

// EventSink receives engine events. Implementations must not block for long.
type EventSink func(Event)
