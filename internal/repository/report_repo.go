package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUploadLimitExceeded is returned when persisting a report would push a
	// free-tier user past their report or storage ceiling.
	ErrUploadLimitExceeded = errors.New("upload_limit_exceeded")
	// ErrReportNotFound covers both a missing report and a report owned by a
	// different user; callers must not be able to tell them apart.
	ErrReportNotFound = errors.New("report_not_found")
)

// ReportRepository persists AI-annotated reports. Creation and the ledger
// increment are one transactional unit so a report row never exists without
// its usage being counted, and the free-tier ceilings can never be exceeded
// by concurrent uploads.
type ReportRepository interface {
	CreateWithUsage(ctx context.Context, report *model.Report) error
	GetByID(ctx context.Context, reportID, userID string) (*model.Report, error)
	List(ctx context.Context, userID string) ([]model.Report, error)
	// DeleteWithUsage removes the report and releases its storage (clamped at
	// zero) in one transaction, returning the deleted report so callers can
	// clean up the stored file.
	DeleteWithUsage(ctx context.Context, reportID, userID string) (*model.Report, error)
}

type reportRepo struct {
	pool *pgxpool.Pool
}

// NewReportRepo creates a new ReportRepository.
func NewReportRepo(pool *pgxpool.Pool) ReportRepository {
	return &reportRepo{pool: pool}
}

func (r *reportRepo) CreateWithUsage(ctx context.Context, report *model.Report) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("starting transaction for report create: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	sizeMB := report.FileSizeMB()

	// The increment re-checks the ceilings so a gate decision made on a stale
	// snapshot cannot overshoot the limits.
	const usageQ = `
        UPDATE user_usage
        SET reports_uploaded = reports_uploaded + 1,
            total_storage_mb = total_storage_mb + $2
        WHERE user_id = $1
          AND (tier IN ('premium', 'trial')
               OR (reports_uploaded < reports_limit AND total_storage_mb + $2 <= storage_limit_mb))
    `
	tag, err := tx.Exec(ctx, usageQ, report.UserID, sizeMB)
	if err != nil {
		return fmt.Errorf("recording report usage for user %s: %w", report.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		const existsQ = `SELECT EXISTS (SELECT 1 FROM user_usage WHERE user_id = $1)`
		if err := tx.QueryRow(ctx, existsQ, report.UserID).Scan(&exists); err != nil {
			return fmt.Errorf("checking usage existence for user %s: %w", report.UserID, err)
		}
		if !exists {
			return ErrUsageNotFound
		}
		return ErrUploadLimitExceeded
	}

	findingsJSON, err := json.Marshal(report.KeyFindings)
	if err != nil {
		return fmt.Errorf("marshaling key findings: %w", err)
	}

	const insertQ = `
        INSERT INTO reports (user_id, report_text, summary, key_findings, file_name, file_size, storage_path)
        VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, insertQ,
		report.UserID,
		report.ReportText,
		report.Summary,
		findingsJSON,
		report.FileName,
		report.FileSize,
		report.StoragePath,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting report for user %s: %w", report.UserID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing report for user %s: %w", report.UserID, err)
	}
	return nil
}

const reportColumns = `id, user_id, report_text, summary, key_findings, file_name, file_size, storage_path, created_at`

func scanReport(row pgx.Row) (*model.Report, error) {
	var rep model.Report
	var findingsJSON []byte
	err := row.Scan(
		&rep.ID,
		&rep.UserID,
		&rep.ReportText,
		&rep.Summary,
		&findingsJSON,
		&rep.FileName,
		&rep.FileSize,
		&rep.StoragePath,
		&rep.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(findingsJSON, &rep.KeyFindings); err != nil {
		return nil, fmt.Errorf("unmarshaling key findings for report %s: %w", rep.ID, err)
	}
	return &rep, nil
}

func (r *reportRepo) GetByID(ctx context.Context, reportID, userID string) (*model.Report, error) {
	q := fmt.Sprintf(`SELECT %s FROM reports WHERE id = $1 AND user_id = $2`, reportColumns)
	rep, err := scanReport(r.pool.QueryRow(ctx, q, reportID, userID))
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting report %s: %w", reportID, err)
	}
	return rep, nil
}

func (r *reportRepo) List(ctx context.Context, userID string) ([]model.Report, error) {
	q := fmt.Sprintf(`SELECT %s FROM reports WHERE user_id = $1 ORDER BY created_at DESC`, reportColumns)
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("querying reports for user %s: %w", userID, err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		reports = append(reports, *rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating report rows: %w", err)
	}
	return reports, nil
}

func (r *reportRepo) DeleteWithUsage(ctx context.Context, reportID, userID string) (*model.Report, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("starting transaction for report delete: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	q := fmt.Sprintf(`DELETE FROM reports WHERE id = $1 AND user_id = $2 RETURNING %s`, reportColumns)
	rep, err := scanReport(tx.QueryRow(ctx, q, reportID, userID))
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("deleting report %s: %w", reportID, err)
	}

	const usageQ = `
        UPDATE user_usage
        SET total_storage_mb = GREATEST(0, total_storage_mb - $2)
        WHERE user_id = $1
    `
	if _, err := tx.Exec(ctx, usageQ, userID, rep.FileSizeMB()); err != nil {
		return nil, fmt.Errorf("releasing storage for user %s: %w", userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing report delete for user %s: %w", userID, err)
	}
	return rep, nil
}
