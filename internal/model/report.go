package model

import "time"

// Key finding categories and severities produced by report analysis.
const (
	FindingNormal   = "normal"
	FindingAbnormal = "abnormal"
	FindingCritical = "critical"

	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// KeyFinding is a single annotated observation extracted from a report.
// Severity is only present for non-normal findings.
type KeyFinding struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Severity string `json:"severity,omitempty"`
}

// Report is a persisted, AI-annotated medical report. Immutable after
// creation except for deletion, which also releases the owner's storage.
type Report struct {
	ID          string       `db:"id" json:"id"`
	UserID      string       `db:"user_id" json:"user_id"`
	ReportText  string       `db:"report_text" json:"report_text"`
	Summary     string       `db:"summary" json:"summary"`
	KeyFindings []KeyFinding `db:"key_findings" json:"key_findings"`
	FileName    string       `db:"file_name" json:"file_name"`
	FileSize    int64        `db:"file_size" json:"file_size"`
	StoragePath string       `db:"storage_path" json:"storage_path"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// FileSizeMB returns the report's file size in megabytes.
func (r *Report) FileSizeMB() float64 {
	return float64(r.FileSize) / (1024 * 1024)
}
