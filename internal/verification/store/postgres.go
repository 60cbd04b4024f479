package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"verity/internal/verification/models"
	"verity/pkg/platform/sentinel"
	txcontext "verity/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists verification state. Writes join the transaction carried
// in the context when there is one.
type Postgres struct {
	db *sql.DB
	tx *txcontext.Runner
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, tx: txcontext.NewRunner(db)}
}

func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.RunInTx(ctx, fn)
}

const recordColumns = `id, review_id, user_id, organization_id, product_id, method, status,
	evidence, trust_score, trust_weight, trust_factors, failure_reason,
	active_request_id, verified_at, expires_at, created_at, updated_at`

func (s *Postgres) CreateRecord(ctx context.Context, rec *models.Record) error {
	evidence, factors, err := encodeRecordJSON(rec)
	if err != nil {
		return err
	}
	query := `INSERT INTO verification_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err = txcontext.Conn(ctx, s.db).ExecContext(ctx, query,
		rec.ID, rec.ReviewID, rec.UserID, nullUUID(rec.OrganizationID), nullUUID(rec.ProductID),
		string(rec.Method), string(rec.Status), evidence, rec.TrustScore, rec.TrustWeight, factors,
		string(rec.FailureReason), nullUUID(rec.ActiveRequestID), nullTime(rec.VerifiedAt),
		nullTime(rec.ExpiresAt), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record for review %s: %w", rec.ReviewID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert verification record: %w", err)
	}
	return nil
}

// FindRecord loads a record. Inside a transaction the row is locked until
// commit so concurrent transitions of the same record serialize.
func (s *Postgres) FindRecord(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM verification_records WHERE id = $1`+lockClause(ctx), id)
	return scanRecord(row)
}

func (s *Postgres) FindRecordByReview(ctx context.Context, reviewID uuid.UUID) (*models.Record, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM verification_records WHERE review_id = $1`+lockClause(ctx), reviewID)
	return scanRecord(row)
}

func lockClause(ctx context.Context) string {
	if _, ok := txcontext.From(ctx); ok {
		return ` FOR UPDATE`
	}
	return ""
}

// UpdateRecord writes the mutable columns. Method and review id are fixed.
func (s *Postgres) UpdateRecord(ctx context.Context, rec *models.Record) error {
	evidence, factors, err := encodeRecordJSON(rec)
	if err != nil {
		return err
	}
	query := `
		UPDATE verification_records SET
			status = $2, evidence = $3, trust_score = $4, trust_weight = $5,
			trust_factors = $6, failure_reason = $7, active_request_id = $8,
			verified_at = $9, expires_at = $10, updated_at = $11
		WHERE id = $1
	`
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query,
		rec.ID, string(rec.Status), evidence, rec.TrustScore, rec.TrustWeight, factors,
		string(rec.FailureReason), nullUUID(rec.ActiveRequestID), nullTime(rec.VerifiedAt),
		nullTime(rec.ExpiresAt), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update verification record: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*models.Record, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+recordColumns+` FROM verification_records
		WHERE status = 'verified' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`, now, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list expiring records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendHistory(ctx context.Context, e *models.HistoryEntry) error {
	_, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO verification_status_history
			(id, record_id, request_id, from_status, to_status, actor_id, reason, trust_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.RecordID, nullUUID(e.RequestID), string(e.FromStatus), string(e.ToStatus),
		nullUUID(e.ActorID), e.Reason, e.TrustScore, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func (s *Postgres) ListHistory(ctx context.Context, recordID uuid.UUID) ([]*models.HistoryEntry, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, record_id, request_id, from_status, to_status, actor_id, reason, trust_score, created_at
		FROM verification_status_history
		WHERE record_id = $1
		ORDER BY created_at ASC, id ASC`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		var (
			e                    models.HistoryEntry
			requestID, actor     uuid.NullUUID
			fromStatus, toStatus string
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &requestID, &fromStatus, &toStatus, &actor,
			&e.Reason, &e.TrustScore, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		e.RequestID = uuidPtr(requestID)
		e.ActorID = uuidPtr(actor)
		e.FromStatus = models.Status(fromStatus)
		e.ToStatus = models.Status(toStatus)
		out = append(out, &e)
	}
	return out, rows.Err()
}

const requestColumns = `id, record_id, method, payload, priority, status, attempts, max_attempts,
	last_attempt_at, next_attempt_at, result, error_message, created_at, updated_at, completed_at`

func (s *Postgres) CreateRequest(ctx context.Context, req *models.Request) error {
	result, err := encodeResult(req.Result)
	if err != nil {
		return err
	}
	_, err = txcontext.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO verification_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		req.ID, req.RecordID, string(req.Method), []byte(req.Payload), req.Priority,
		string(req.Status), req.Attempts, req.MaxAttempts, nullTime(req.LastAttemptAt),
		req.NextAttemptAt, result, req.ErrorMessage, req.CreatedAt, req.UpdatedAt,
		nullTime(req.CompletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification request: %w", err)
	}
	return nil
}

func (s *Postgres) FindRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// ListRequests returns the requests of a record, oldest first, optionally
// restricted to the given statuses.
func (s *Postgres) ListRequests(ctx context.Context, recordID uuid.UUID, statuses ...models.RequestStatus) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE record_id = $1`
	args := []any{recordID}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY created_at ASC`
	return s.queryRequests(ctx, query, args...)
}

// ClaimNext moves the highest-priority, oldest ready request to processing.
// SKIP LOCKED lets concurrent workers claim different rows; only one claimant
// can win a given row. It returns nil when nothing is ready.
func (s *Postgres) ClaimNext(ctx context.Context, now time.Time) (*models.Request, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx, `
		UPDATE verification_requests SET
			status = 'processing',
			attempts = attempts + 1,
			last_attempt_at = $1,
			updated_at = $1
		WHERE id = (
			SELECT id FROM verification_requests
			WHERE status = 'queued' AND next_attempt_at <= $1 AND attempts < max_attempts
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+requestColumns, now)
	req, err := scanRequest(row)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return req, err
}

func (s *Postgres) CompleteRequest(ctx context.Context, id uuid.UUID, result *models.RegistryResult, now time.Time) error {
	res, err := encodeResult(result)
	if err != nil {
		return err
	}
	return s.finishProcessing(ctx, `
		UPDATE verification_requests SET
			status = 'completed', result = $2, error_message = '', completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'`, id, res, now)
}

func (s *Postgres) FailRequest(ctx context.Context, id uuid.UUID, result *models.RegistryResult, message string, now time.Time) error {
	res, err := encodeResult(result)
	if err != nil {
		return err
	}
	return s.finishProcessing(ctx, `
		UPDATE verification_requests SET
			status = 'failed', result = $2, error_message = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'processing'`, id, res, message, now)
}

func (s *Postgres) RequeueRequest(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, message string, now time.Time) error {
	return s.finishProcessing(ctx, `
		UPDATE verification_requests SET
			status = 'queued', next_attempt_at = $2, error_message = $3, updated_at = $4
		WHERE id = $1 AND status = 'processing'`, id, nextAttemptAt, message, now)
}

func (s *Postgres) finishProcessing(ctx context.Context, query string, id uuid.UUID, args ...any) error {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}
	return s.requireStateChange(ctx, res, id)
}

func (s *Postgres) CancelRequest(ctx context.Context, id uuid.UUID, now time.Time) (*models.Request, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx, `
		UPDATE verification_requests SET status = 'cancelled', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'queued'
		RETURNING `+requestColumns, id, now)
	req, err := scanRequest(row)
	if errors.Is(err, sentinel.ErrNotFound) {
		if _, findErr := s.FindRequest(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("request %s is not queued: %w", id, sentinel.ErrInvalidState)
	}
	return req, err
}

func (s *Postgres) CancelQueuedForRecord(ctx context.Context, recordID uuid.UUID, now time.Time) (int, error) {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE verification_requests SET status = 'cancelled', completed_at = $2, updated_at = $2
		WHERE record_id = $1 AND status = 'queued'`, recordID, now)
	if err != nil {
		return 0, fmt.Errorf("cancel queued requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel queued requests: %w", err)
	}
	return int(n), nil
}

func (s *Postgres) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Request, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM verification_requests
		WHERE status = 'processing' AND last_attempt_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, cutoff, limitOrAll(limit))
}

func (s *Postgres) queryRequests(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query verification requests: %w", err)
	}
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendAudit(ctx context.Context, e *models.RegistryAuditEntry) error {
	_, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO registry_audit_log
			(id, record_id, request_id, attempt, request_body, response_body,
			 error_category, error_message, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.RecordID, e.RequestID, e.Attempt, nullJSON(e.RequestBody), nullJSON(e.ResponseBody),
		e.ErrorCategory, e.ErrorMessage, e.Duration.Milliseconds(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append registry audit: %w", err)
	}
	return nil
}

func (s *Postgres) ListAudit(ctx context.Context, recordID uuid.UUID) ([]*models.RegistryAuditEntry, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, record_id, request_id, attempt, request_body, response_body,
			error_category, error_message, duration_ms, created_at
		FROM registry_audit_log
		WHERE record_id = $1
		ORDER BY created_at ASC, attempt ASC`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list registry audit: %w", err)
	}
	defer rows.Close()

	var out []*models.RegistryAuditEntry
	for rows.Next() {
		var (
			e          models.RegistryAuditEntry
			reqBody    []byte
			respBody   []byte
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &e.RequestID, &e.Attempt, &reqBody, &respBody,
			&e.ErrorCategory, &e.ErrorMessage, &durationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registry audit: %w", err)
		}
		e.RequestBody = reqBody
		e.ResponseBody = respBody
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		rec                        models.Record
		orgID, productID, activeID uuid.NullUUID
		method, status, reason     string
		evidence, factors          []byte
		verifiedAt, expiresAt      sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.ReviewID, &rec.UserID, &orgID, &productID, &method, &status,
		&evidence, &rec.TrustScore, &rec.TrustWeight, &factors, &reason,
		&activeID, &verifiedAt, &expiresAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification record: %w", err)
	}
	rec.OrganizationID = uuidPtr(orgID)
	rec.ProductID = uuidPtr(productID)
	rec.ActiveRequestID = uuidPtr(activeID)
	rec.Method = models.Method(method)
	rec.Status = models.Status(status)
	rec.FailureReason = models.FailureReason(reason)
	rec.VerifiedAt = timePtr(verifiedAt)
	rec.ExpiresAt = timePtr(expiresAt)

	if rec.Evidence, err = models.UnmarshalEvidence(rec.Method, evidence); err != nil {
		return nil, err
	}
	rec.TrustFactors = models.TrustFactors{}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &rec.TrustFactors); err != nil {
			return nil, fmt.Errorf("decode trust factors: %w", err)
		}
	}
	return &rec, nil
}

func scanRequest(row scanner) (*models.Request, error) {
	var (
		req                      models.Request
		method, status           string
		payload, result          []byte
		lastAttempt, completedAt sql.NullTime
	)
	err := row.Scan(&req.ID, &req.RecordID, &method, &payload, &req.Priority, &status,
		&req.Attempts, &req.MaxAttempts, &lastAttempt, &req.NextAttemptAt, &result,
		&req.ErrorMessage, &req.CreatedAt, &req.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification request: %w", err)
	}
	req.Method = models.Method(method)
	req.Status = models.RequestStatus(status)
	req.Payload = payload
	req.LastAttemptAt = timePtr(lastAttempt)
	req.CompletedAt = timePtr(completedAt)
	if len(result) > 0 {
		req.Result = &models.RegistryResult{}
		if err := json.Unmarshal(result, req.Result); err != nil {
			return nil, fmt.Errorf("decode registry result: %w", err)
		}
	}
	return &req, nil
}

func encodeRecordJSON(rec *models.Record) ([]byte, []byte, error) {
	evidence, err := models.MarshalEvidence(rec.Evidence)
	if err != nil {
		return nil, nil, fmt.Errorf("encode evidence: %w", err)
	}
	factors := rec.TrustFactors
	if factors == nil {
		factors = models.TrustFactors{}
	}
	encoded, err := json.Marshal(factors)
	if err != nil {
		return nil, nil, fmt.Errorf("encode trust factors: %w", err)
	}
	return evidence, encoded, nil
}

func encodeResult(r *models.RegistryResult) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode registry result: %w", err)
	}
	return b, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// requireStateChange distinguishes a missing request from one that a
// conditional update skipped because it was in another state.
func (s *Postgres) requireStateChange(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.FindRequest(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("request %s is not processing: %w", id, sentinel.ErrInvalidState)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nullUUID(v *uuid.UUID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *v, Valid: true}
}

func uuidPtr(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
