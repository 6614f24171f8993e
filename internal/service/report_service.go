package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"app/internal/ai"
	"app/internal/extract"
	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/quota"
	"app/internal/repository"
	"app/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrFileTooLarge is returned when an upload exceeds the hard size cap.
	ErrFileTooLarge = errors.New("file_too_large")
	// ErrAnalysisFailed is returned when the AI analysis could not produce a
	// usable result. Nothing is persisted and no usage is consumed.
	ErrAnalysisFailed = errors.New("analysis_failed")
)

// analysisPrompt instructs the model to return structured findings as JSON.
const analysisPrompt = `You are an expert medical report analyzer. Extract:
1. A concise summary (2-3 sentences)
2. Key findings categorized as: normal, abnormal, or critical
3. Severity levels for abnormal/critical findings

Return ONLY valid JSON:
{
  "summary": "...",
  "keyFindings": [
    {
      "category": "normal|abnormal|critical",
      "text": "...",
      "severity": "low|medium|high"
    }
  ]
}`

// ReportService runs the ingestion pipeline: size check, quota gate, text
// extraction, AI analysis, then atomic persist-and-count.
type ReportService interface {
	Upload(ctx context.Context, userID, fileName, contentType string, data []byte) (*model.Report, error)
	GetReport(ctx context.Context, userID, reportID string) (*model.Report, error)
	ListReports(ctx context.Context, userID string) ([]model.Report, error)
	DeleteReport(ctx context.Context, userID, reportID string) error
	GetDownloadURL(ctx context.Context, userID, reportID string) (string, error)
}

type reportService struct {
	repo         repository.ReportRepository
	usageService UsageService
	extractor    extract.Extractor
	completer    ai.Completer
	store        storage.ObjectStore
	events       *pubsub.ReportEvents

	analysisModel string
	maxSizeBytes  int64
	reportLogger  zerolog.Logger
}

// NewReportService creates a new ReportService. events may be nil, which
// disables lifecycle notifications.
func NewReportService(
	repo repository.ReportRepository,
	usageService UsageService,
	extractor extract.Extractor,
	completer ai.Completer,
	store storage.ObjectStore,
	events *pubsub.ReportEvents,
	analysisModel string,
	maxSizeMB int,
	logger zerolog.Logger,
) ReportService {
	return &reportService{
		repo:          repo,
		usageService:  usageService,
		extractor:     extractor,
		completer:     completer,
		store:         store,
		events:        events,
		analysisModel: analysisModel,
		maxSizeBytes:  int64(maxSizeMB) * 1024 * 1024,
		reportLogger:  logger.With().Str("service", "ReportService").Logger(),
	}
}

// ingestStage enumerates the pipeline states. Stages run strictly in order;
// any stage error terminates the run.
type ingestStage int

const (
	stageSizeValidated ingestStage = iota
	stageQuotaChecked
	stageTextExtracted
	stageAIAnalyzed
	stagePersisted
	stageComplete
)

func (s ingestStage) String() string {
	switch s {
	case stageSizeValidated:
		return "size_validated"
	case stageQuotaChecked:
		return "quota_checked"
	case stageTextExtracted:
		return "text_extracted"
	case stageAIAnalyzed:
		return "ai_analyzed"
	case stagePersisted:
		return "persisted"
	default:
		return "complete"
	}
}

// progress is the percentage complete once the stage has finished.
func (s ingestStage) progress() int {
	switch s {
	case stageTextExtracted:
		return 50
	case stageAIAnalyzed:
		return 80
	case stagePersisted:
		return 100
	default:
		return 0
	}
}

// ingestRun carries the accumulating state of one pipeline invocation.
type ingestRun struct {
	userID      string
	fileName    string
	contentType string
	data        []byte
	sizeMB      float64

	text     string
	analysis *analysisResult
	report   *model.Report
}

type analysisResult struct {
	Summary     string             `json:"summary"`
	KeyFindings []model.KeyFinding `json:"keyFindings"`
}

// Upload drives the ingestion state machine to completion. The quota gate
// runs up front on a fresh ledger snapshot; the persist stage re-checks the
// ceilings inside its transaction, so concurrent uploads can never overshoot
// the limits. Cancellation is honored through extraction only: once the text
// is out, the remaining stages run on a non-cancellable context.
func (s *reportService) Upload(ctx context.Context, userID, fileName, contentType string, data []byte) (*model.Report, error) {
	run := &ingestRun{
		userID:      userID,
		fileName:    fileName,
		contentType: contentType,
		data:        data,
		sizeMB:      float64(len(data)) / (1024 * 1024),
	}

	for stage := stageSizeValidated; stage != stageComplete; stage++ {
		if err := s.runStage(ctx, stage, run); err != nil {
			return nil, err
		}
		if p := stage.progress(); p > 0 {
			s.reportLogger.Debug().Str("user_id", userID).Stringer("stage", stage).Int("progress", p).Msg("Ingestion stage complete")
		}
		if stage == stageTextExtracted {
			ctx = context.WithoutCancel(ctx)
		}
	}

	s.reportLogger.Info().Str("user_id", userID).Str("report_id", run.report.ID).Msg("Report analyzed and stored")
	return run.report, nil
}

func (s *reportService) runStage(ctx context.Context, stage ingestStage, run *ingestRun) error {
	switch stage {
	case stageSizeValidated:
		if int64(len(run.data)) > s.maxSizeBytes {
			return ErrFileTooLarge
		}
		return nil

	case stageQuotaChecked:
		usage, err := s.usageService.GetUsage(ctx, run.userID)
		if err != nil {
			return fmt.Errorf("checking usage before upload: %w", err)
		}
		if d := quota.CanUploadReport(usage, run.sizeMB); !d.Allowed {
			return &QuotaError{Reason: d.Reason}
		}
		return nil

	case stageTextExtracted:
		text, err := s.extractor.Extract(ctx, run.fileName, run.contentType, run.data)
		if err != nil {
			s.reportLogger.Error().Err(err).Str("user_id", run.userID).Str("file_name", run.fileName).Msg("Text extraction failed")
			return fmt.Errorf("extracting text from %s: %w", run.fileName, err)
		}
		run.text = text
		return nil

	case stageAIAnalyzed:
		analysis, err := s.analyze(ctx, run.text)
		if err != nil {
			s.reportLogger.Error().Err(err).Str("user_id", run.userID).Str("file_name", run.fileName).Msg("AI analysis failed")
			s.publishEvent(ctx, pubsub.ReportEvent{
				Type:     pubsub.EventReportFailed,
				UserID:   run.userID,
				FileName: run.fileName,
				Error:    err.Error(),
			})
			return ErrAnalysisFailed
		}
		run.analysis = analysis
		return nil

	case stagePersisted:
		return s.persist(ctx, run)

	default:
		return fmt.Errorf("unknown ingestion stage %d", stage)
	}
}

// persist stores the original blob, then inserts the report and increments
// the ledger as one transactional unit.
func (s *reportService) persist(ctx context.Context, run *ingestRun) error {
	storagePath := storage.ReportKey(uuid.New().String(), run.fileName)
	if err := s.store.Put(ctx, storagePath, run.contentType, run.data); err != nil {
		s.reportLogger.Error().Err(err).Str("storage_path", storagePath).Msg("Failed to store original file")
		return fmt.Errorf("storing report file: %w", err)
	}

	report := &model.Report{
		UserID:      run.userID,
		ReportText:  run.text,
		Summary:     run.analysis.Summary,
		KeyFindings: run.analysis.KeyFindings,
		FileName:    run.fileName,
		FileSize:    int64(len(run.data)),
		StoragePath: storagePath,
	}
	if err := s.repo.CreateWithUsage(ctx, report); err != nil {
		// The row never landed, so the stored blob is orphaned.
		if delErr := s.store.Delete(ctx, storagePath); delErr != nil {
			s.reportLogger.Warn().Err(delErr).Str("storage_path", storagePath).Msg("Failed to clean up orphaned file")
		}
		if errors.Is(err, repository.ErrUploadLimitExceeded) || errors.Is(err, repository.ErrUsageNotFound) {
			return s.quotaDenial(ctx, run.userID, run.sizeMB)
		}
		s.reportLogger.Error().Err(err).Str("user_id", run.userID).Msg("Failed to persist report")
		return fmt.Errorf("persisting report: %w", err)
	}
	run.report = report

	s.publishEvent(ctx, pubsub.ReportEvent{
		Type:     pubsub.EventReportAnalyzed,
		ReportID: report.ID,
		UserID:   run.userID,
		FileName: run.fileName,
	})
	return nil
}

// analyze sends the extracted text to the model and parses the structured
// result. Empty text is still analyzed; the model reports what it can.
func (s *reportService) analyze(ctx context.Context, text string) (*analysisResult, error) {
	raw, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Model:       s.analysisModel,
		System:      analysisPrompt,
		Parts:       []ai.Part{ai.TextPart("Analyze:\n\n" + text)},
		Temperature: 0.3,
		MaxTokens:   1000,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var result analysisResult
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &result); err != nil {
		return nil, fmt.Errorf("parsing analysis response: %w", err)
	}
	if result.Summary == "" {
		return nil, errors.New("analysis response has no summary")
	}
	for _, f := range result.KeyFindings {
		switch f.Category {
		case model.FindingNormal, model.FindingAbnormal, model.FindingCritical:
		default:
			return nil, fmt.Errorf("analysis response has invalid finding category %q", f.Category)
		}
	}
	return &result, nil
}

// stripCodeFence unwraps a response the model wrapped in a markdown fence
// despite JSON mode.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// quotaDenial rebuilds the user-facing reason after the transactional persist
// rejected the upload.
func (s *reportService) quotaDenial(ctx context.Context, userID string, sizeMB float64) error {
	usage, err := s.usageService.GetUsage(ctx, userID)
	if err != nil {
		return &QuotaError{Reason: "Upload limit reached"}
	}
	if d := quota.CanUploadReport(usage, sizeMB); !d.Allowed {
		return &QuotaError{Reason: d.Reason}
	}
	return &QuotaError{Reason: "Upload limit reached"}
}

func (s *reportService) publishEvent(ctx context.Context, event pubsub.ReportEvent) {
	if _, err := s.events.Publish(ctx, event); err != nil {
		s.reportLogger.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to publish report event")
	}
}

func (s *reportService) GetReport(ctx context.Context, userID, reportID string) (*model.Report, error) {
	report, err := s.repo.GetByID(ctx, reportID, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrReportNotFound) {
			s.reportLogger.Error().Err(err).Str("report_id", reportID).Msg("Failed to get report")
		}
		return nil, err
	}
	return report, nil
}

func (s *reportService) ListReports(ctx context.Context, userID string) ([]model.Report, error) {
	reports, err := s.repo.List(ctx, userID)
	if err != nil {
		s.reportLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list reports")
		return nil, err
	}
	return reports, nil
}

// DeleteReport removes the report row, releases its storage from the ledger,
// then deletes the stored file best-effort.
func (s *reportService) DeleteReport(ctx context.Context, userID, reportID string) error {
	report, err := s.repo.DeleteWithUsage(ctx, reportID, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrReportNotFound) {
			s.reportLogger.Error().Err(err).Str("report_id", reportID).Msg("Failed to delete report")
		}
		return err
	}

	if report.StoragePath != "" {
		if err := s.store.Delete(ctx, report.StoragePath); err != nil {
			// The row is gone and storage was released; the leftover blob is
			// an operational cleanup concern, not a user-facing failure.
			s.reportLogger.Warn().Err(err).Str("storage_path", report.StoragePath).Msg("Failed to delete stored file")
		}
	}
	return nil
}

func (s *reportService) GetDownloadURL(ctx context.Context, userID, reportID string) (string, error) {
	report, err := s.repo.GetByID(ctx, reportID, userID)
	if err != nil {
		return "", err
	}
	if report.StoragePath == "" {
		return "", repository.ErrReportNotFound
	}
	url, err := s.store.PresignGet(ctx, report.StoragePath)
	if err != nil {
		s.reportLogger.Error().Err(err).Str("report_id", reportID).Msg("Failed to presign download URL")
		return "", err
	}
	return url, nil
}
