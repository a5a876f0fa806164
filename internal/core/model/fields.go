package model

// Field aliases recognized in raw records, in priority order.
var (
	IDFields        = []string{"id", "uuid", "event_id", "timeline_id", "reference"}
	TypeFields      = []string{"type", "event_type", "kind"}
	TimestampFields = []string{"occurred_at", "timestamp", "event_time", "created_at", "received_at"}
	TitleFields     = []string{"title", "name"}
	SummaryFields   = []string{"summary", "description", "status"}
	PayloadFields   = []string{"payload", "data", "details"}
	MetadataFields  = []string{"metadata", "context"}
	SourceField     = "source"
	SourceNameField = "name"
)

// Keys under which a retrieval response may wrap its record list.
var EnvelopeFields = []string{"entries", "timeline", "items"}
