package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const idempotencyColumns = `
	source, key, request_hash, response_body, status_code, status, ttl_at, created_at, updated_at`

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
// Первичный ключ таблицы — (source, key).
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key domain.IdempotencyKey, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := key.Normalize()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}
	record := domain.NewProcessingRecord(key, requestHash, ttlAt, time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Истёкшая запись занимается заново, живая остаётся как есть.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (
			source, key, request_hash, response_body, status_code, status, ttl_at, created_at, updated_at
		) VALUES ($1,$2,$3,NULL,NULL,$4,$5,$6,$6)
		ON CONFLICT (source, key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    response_body = NULL,
		    status_code = NULL,
		    status = EXCLUDED.status,
		    ttl_at = EXCLUDED.ttl_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.ttl_at <= EXCLUDED.created_at
	`, string(key.Source), key.Value, record.RequestHash, string(record.Status), record.TTLAt, record.CreatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected > 0 {
		return record, nil
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		// Запись истекла между INSERT и SELECT: для клиента это тот же конфликт.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if err := existing.Claim(requestHash, record.CreatedAt); err != nil {
		return existing, err
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *idempotencyRepository) Get(ctx context.Context, key domain.IdempotencyKey) (domain.IdempotencyRecord, error) {
	key, err := key.Normalize()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(ctx, `
		SELECT `+idempotencyColumns+`
		FROM idempotency_keys
		WHERE source = $1 AND key = $2 AND ttl_at > $3
	`, string(key.Source), key.Value, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record %s: %w", key, err)
	}
	return record, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key domain.IdempotencyKey, responseBody []byte, statusCode int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, statusCode)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key domain.IdempotencyKey, responseBody []byte, statusCode int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, statusCode)
}

// DeleteExpired удаляет порцию самых старых записей и считает удалённые по транспортам
// одним запросом. limit <= 0 снимает ограничение (LIMIT NULL).
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (domain.IdempotencyPurge, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}
	batch := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		WITH expired AS (
			SELECT source, key
			FROM idempotency_keys
			WHERE ttl_at <= $1
			ORDER BY ttl_at ASC
			LIMIT $2
		), deleted AS (
			DELETE FROM idempotency_keys k
			USING expired e
			WHERE k.source = e.source AND k.key = e.key
			RETURNING k.source
		)
		SELECT source, count(*) FROM deleted GROUP BY source
	`, before, batch)
	if err != nil {
		return nil, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	defer rows.Close()

	purge := make(domain.IdempotencyPurge, len(domain.IdempotencySources))
	for rows.Next() {
		var (
			source string
			count  int
		)
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan purged idempotency source: %w", err)
		}
		purge[domain.IdempotencySource(source)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purged idempotency sources: %w", err)
	}
	return purge, nil
}

func (r *idempotencyRepository) finish(ctx context.Context, key domain.IdempotencyKey, status domain.IdempotencyStatus, responseBody []byte, statusCode int) error {
	key, err := key.Normalize()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET response_body = $3,
		    status_code = $4,
		    status = $5,
		    updated_at = $6
		WHERE source = $1 AND key = $2
	`, string(key.Source), key.Value, responseBody, statusCode, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark idempotency record %s as %s: %w", key, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		record       domain.IdempotencyRecord
		source       string
		status       string
		responseBody []byte
		statusCode   sql.NullInt64
	)
	if err := row.Scan(
		&source, &record.Key.Value, &record.RequestHash, &responseBody, &statusCode,
		&status, &record.TTLAt, &record.CreatedAt, &record.UpdatedAt,
	); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.Key.Source = domain.IdempotencySource(source)
	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", status, record.Key)
	}
	record.ResponseBody = append([]byte(nil), responseBody...)
	if statusCode.Valid {
		record.StatusCode = int(statusCode.Int64)
	}
	record.TTLAt = record.TTLAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
