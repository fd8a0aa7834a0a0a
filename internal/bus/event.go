package bus

import "time"

// Event kinds published by the engine. Subscribers filter by prefix, so
// "send." matches every delivery event.
const (
	KindSendAttempted     = "send.attempted"
	KindSendDelivered     = "send.delivered"
	KindSendFallback      = "send.fallback"
	KindSendFailed        = "send.failed"
	KindDirectoryReloaded = "directory.reloaded"
	KindDirectoryStale    = "directory.stale"
	KindStoreRowSkipped   = "store.row_skipped"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
