package repository

import (
	"context"
	"time"
)

// IdempotencyKeyRow mirrors one reserved or finalized request.
type IdempotencyKeyRow struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
}

const idempotencyColumns = `idempotency_key, request_hash, method, path,
	COALESCE(response_status, 0), COALESCE(response_body, ''::bytea),
	COALESCE(content_type, ''), in_progress, created_at`

func scanIdempotencyKey(row interface{ Scan(dest ...any) error }) (IdempotencyKeyRow, error) {
	var r IdempotencyKeyRow
	err := row.Scan(&r.IdempotencyKey, &r.RequestHash, &r.Method, &r.Path,
		&r.ResponseStatus, &r.ResponseBody, &r.ContentType, &r.InProgress, &r.CreatedAt)
	return r, err
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `
		SELECT `+idempotencyColumns+`
		FROM idempotency_keys
		WHERE idempotency_key = $1`, key))
}

// ReserveIdempotencyKey claims the key for the first request to arrive.
// Returns pgx.ErrNoRows when the key is already held.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, key, requestHash, method, path string) (IdempotencyKeyRow, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING `+idempotencyColumns, key, requestHash, method, path))
}

// FinalizeIdempotencyKey stores the response for replays and releases the
// in-progress hold.
func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, key, requestHash string, status int32, body []byte, contentType string) (IdempotencyKeyRow, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $3, response_body = $4, content_type = $5, in_progress = FALSE
		WHERE idempotency_key = $1 AND request_hash = $2
		RETURNING `+idempotencyColumns, key, requestHash, status, body, contentType))
}

// PurgeIdempotencyKeys removes keys older than the cutoff.
func (q *Queries) PurgeIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
