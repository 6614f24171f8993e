package dto

import "time"

type KeyFindingDTO struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Severity string `json:"severity,omitempty"`
}

type ReportResponseDTO struct {
	ID          string          `json:"id"`
	Summary     string          `json:"summary"`
	KeyFindings []KeyFindingDTO `json:"key_findings"`
	FileName    string          `json:"file_name"`
	FileSize    int64           `json:"file_size"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ReportDetailDTO additionally carries the extracted text for the detail view.
type ReportDetailDTO struct {
	ReportResponseDTO
	ReportText string `json:"report_text"`
}

type DownloadURLResponseDTO struct {
	URL string `json:"url"`
}
