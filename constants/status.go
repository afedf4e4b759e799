package constants

// ProcessingStatus is the terminal outcome of one document in a batch.
type ProcessingStatus string

// Stable values (store these exact strings in processing_log).
const (
	StatusSuccess ProcessingStatus = "success" // all records persisted, confidence at/above auto threshold
	StatusReview  ProcessingStatus = "review"  // persisted, but at least one record needs a human check
	StatusManual  ProcessingStatus = "manual"  // nothing persisted, file moved to manual review
	StatusError   ProcessingStatus = "error"   // unexpected failure, best-effort manual routing
)
