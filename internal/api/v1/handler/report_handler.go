package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type ReportHandler struct {
	reportService service.ReportService
	maxUploadMB   int
	logger        zerolog.Logger
}

func NewReportHandler(reportService service.ReportService, maxUploadMB int, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		maxUploadMB:   maxUploadMB,
		logger:        logger,
	}
}

func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/reports", authMw(http.HandlerFunc(h.handleReports)))
	mux.Handle("/reports/", authMw(http.HandlerFunc(h.handleReport)))
}

func (h *ReportHandler) handleReports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.uploadReport(w, r)
	case http.MethodGet:
		h.listReports(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ReportHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/reports/")
	parts := strings.Split(rest, "/")
	reportID := parts[0]
	if reportID == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getReport(w, r, reportID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.deleteReport(w, r, reportID)
	case len(parts) == 2 && parts[1] == "download" && r.Method == http.MethodGet:
		h.downloadReport(w, r, reportID)
	default:
		http.NotFound(w, r)
	}
}

// uploadReport ingests a report file sent as multipart/form-data under the
// "file" field. The response carries the AI analysis.
func (h *ReportHandler) uploadReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	// One extra MB of form overhead on top of the file cap; the service
	// enforces the exact file size limit.
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxUploadMB+1)*1024*1024)
	if err := r.ParseMultipartForm(int64(h.maxUploadMB) * 1024 * 1024); err != nil {
		http.Error(w, "Invalid multipart payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "File is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	report, err := h.reportService.Upload(r.Context(), userID, header.Filename, contentType, data)
	if err != nil {
		var qe *service.QuotaError
		switch {
		case errors.As(err, &qe):
			http.Error(w, qe.Reason, http.StatusForbidden)
		case errors.Is(err, service.ErrFileTooLarge):
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, service.ErrAnalysisFailed):
			http.Error(w, "Failed to analyze report", http.StatusInternalServerError)
		default:
			http.Error(w, "Failed to upload report: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toReportDetailDTO(report)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *ReportHandler) listReports(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	reports, err := h.reportService.ListReports(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to list reports: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := lo.Map(reports, func(rep model.Report, _ int) dto.ReportResponseDTO {
		return toReportDTO(&rep)
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *ReportHandler) getReport(w http.ResponseWriter, r *http.Request, reportID string) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	report, err := h.reportService.GetReport(r.Context(), userID, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get report: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toReportDetailDTO(report)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *ReportHandler) deleteReport(w http.ResponseWriter, r *http.Request, reportID string) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.reportService.DeleteReport(r.Context(), userID, reportID); err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete report: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ReportHandler) downloadReport(w http.ResponseWriter, r *http.Request, reportID string) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	url, err := h.reportService.GetDownloadURL(r.Context(), userID, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to generate download URL: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dto.DownloadURLResponseDTO{URL: url}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func toReportDTO(rep *model.Report) dto.ReportResponseDTO {
	return dto.ReportResponseDTO{
		ID:      rep.ID,
		Summary: rep.Summary,
		KeyFindings: lo.Map(rep.KeyFindings, func(f model.KeyFinding, _ int) dto.KeyFindingDTO {
			return dto.KeyFindingDTO{Category: f.Category, Text: f.Text, Severity: f.Severity}
		}),
		FileName:  rep.FileName,
		FileSize:  rep.FileSize,
		CreatedAt: rep.CreatedAt,
	}
}

func toReportDetailDTO(rep *model.Report) dto.ReportDetailDTO {
	return dto.ReportDetailDTO{
		ReportResponseDTO: toReportDTO(rep),
		ReportText:        rep.ReportText,
	}
}
