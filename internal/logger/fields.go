package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the ingestion job ID
	FieldJobID = "job_id"

	// FieldMarketplace is the source marketplace identifier
	FieldMarketplace = "marketplace"

	// FieldItemID is the tracked item ID
	FieldItemID = "item_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldMode is the scrape mode (scheduled or backfill)
	FieldMode = "mode"
)

// Standard metric fields, attached per log entry for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is a response or payload size in bytes
	FieldSize = "size"
)
