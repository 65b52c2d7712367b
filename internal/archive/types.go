package archive

import "time"

// PaidBookingRecord is the archived form of a completed payment. Contact
// details are hashed or dropped.
type PaidBookingRecord struct {
	Version     string    `json:"version"` // "1.0"
	Reference   string    `json:"reference"`
	PhoneHash   string    `json:"phone_hash"`
	EmailHash   string    `json:"email_hash"`
	Postcode    string    `json:"postcode"`
	VisitDate   string    `json:"visit_date"`
	VisitWindow string    `json:"visit_window"`
	Summary     string    `json:"summary,omitempty"`
	IntentID    string    `json:"intent_id"`
	ProductName string    `json:"product_name"`
	UnitAmount  int64     `json:"unit_amount"`
	Currency    string    `json:"currency"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	Reference  string `json:"reference"`
	S3Key      string `json:"s3_key"`
	VisitDate  string `json:"visit_date"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	ArchivedAt string `json:"archived_at"`
}
