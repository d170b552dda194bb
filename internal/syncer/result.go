// Package syncer implements the reconciliation pipeline that turns Fireflies
// call transcripts into DealCloud interactions, and the run controller that
// drives it over batches.
package syncer

// Status is the terminal outcome of processing one transcript.
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// ContactRef describes a contact linked to an interaction, for reporting.
type ContactRef struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	ID    int    `json:"id"`
}

// DealRef describes a deal linked to an interaction, for reporting.
type DealRef struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// SyncResult is the outcome of processing one transcript. A transcript always
// produces exactly one result; failures never propagate past it.
type SyncResult struct {
	TranscriptID    string       `json:"transcript_id"`
	TranscriptTitle string       `json:"transcript_title"`
	Status          Status       `json:"status"`
	Reason          string       `json:"reason,omitempty"`
	InteractionID   int          `json:"interaction_id,omitempty"`
	CompanyID       int          `json:"company_id,omitempty"`
	ContactIDs      []int        `json:"contact_ids"`
	DealIDs         []int        `json:"deal_ids"`
	FoundContacts   []ContactRef `json:"found_contacts"`
	CreatedContacts []ContactRef `json:"created_contacts"`
	FoundDeals      []DealRef    `json:"found_deals"`
	Error           string       `json:"error,omitempty"`
}

// Summary aggregates one full run.
type Summary struct {
	Success            bool         `json:"success"`
	RunID              string       `json:"run_id"`
	TranscriptsFetched int          `json:"transcripts_fetched"`
	ProcessedCount     int          `json:"processed_count"`
	CreatedCount       int          `json:"created_count"`
	UpdatedCount       int          `json:"updated_count"`
	SkippedCount       int          `json:"skipped_count"`
	ErrorCount         int          `json:"error_count"`
	ContactsCreated    int          `json:"contacts_created"`
	DurationSeconds    float64      `json:"duration_seconds"`
	Results            []SyncResult `json:"results"`
}

// OneResult wraps a single-transcript run.
type OneResult struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Result  *SyncResult `json:"result,omitempty"`
}
