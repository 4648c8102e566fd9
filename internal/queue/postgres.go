package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jiwoo/sms-sequencer/internal/storage"
)

// PostgresRepository is the pgx-backed Repository. Mutating operations on one
// queue are serialized through a per-queue transaction-scoped advisory lock,
// which keeps the claim (read head, check in-flight, transition) atomic
// against concurrent workers.
type PostgresRepository struct {
	db *storage.DB
}

// NewPostgresRepository creates a PostgresRepository on the given pool.
func NewPostgresRepository(db *storage.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, recipient_id, queue_name, sequence_number, content, status,
	COALESCE(provider_message_id, ''), retry_count, max_retries, last_error,
	created_at, sent_at, delivered_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e       Entry
		content []byte
	)
	err := row.Scan(
		&e.ID, &e.RecipientID, &e.QueueName, &e.SequenceNumber, &content, &e.Status,
		&e.ProviderMessageID, &e.RetryCount, &e.MaxRetries, &e.LastError,
		&e.CreatedAt, &e.SentAt, &e.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(content, &e.Content); err != nil {
		return nil, fmt.Errorf("decode entry content: %w", err)
	}
	return &e, nil
}

// lockQueue takes the transaction-scoped advisory lock for one queue.
func lockQueue(ctx context.Context, tx pgx.Tx, recipientID, queueName string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, recipientID, queueName)
	if err != nil {
		return fmt.Errorf("lock queue: %w", err)
	}
	return nil
}

// InsertBatch implements Repository.
func (r *PostgresRepository) InsertBatch(ctx context.Context, recipientID, queueName string, items []Content, maxRetries int) ([]*Entry, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockQueue(ctx, tx, recipientID, queueName); err != nil {
		return nil, err
	}

	var seq int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0)
		FROM queue_entries
		WHERE recipient_id = $1 AND queue_name = $2`,
		recipientID, queueName,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("read max sequence: %w", err)
	}

	created := make([]*Entry, 0, len(items))
	for _, item := range items {
		seq++
		content, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode entry content: %w", err)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO queue_entries
				(id, recipient_id, queue_name, sequence_number, content, status, max_retries)
			VALUES ($1, $2, $3, $4, $5, 'pending', $6)
			RETURNING `+entryColumns,
			uuid.New(), recipientID, queueName, seq, content, maxRetries,
		)
		e, err := scanEntry(row)
		if err != nil {
			return nil, fmt.Errorf("insert entry: %w", err)
		}
		created = append(created, e)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return created, nil
}

// ClaimNextPending implements Repository. The advisory lock serializes claims
// per queue, so the in-flight check and the transition commit as one unit.
func (r *PostgresRepository) ClaimNextPending(ctx context.Context, recipientID, queueName string) (*Entry, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockQueue(ctx, tx, recipientID, queueName); err != nil {
		return nil, err
	}

	var inFlight bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM queue_entries
			WHERE recipient_id = $1 AND queue_name = $2 AND status = 'sent'
		)`,
		recipientID, queueName,
	).Scan(&inFlight)
	if err != nil {
		return nil, fmt.Errorf("check in-flight: %w", err)
	}
	if inFlight {
		return nil, ErrInFlight
	}

	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'sent', sent_at = now()
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE recipient_id = $1 AND queue_name = $2 AND status = 'pending'
			ORDER BY sequence_number
			LIMIT 1
		)
		RETURNING `+entryColumns,
		recipientID, queueName,
	)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDrained
	}
	if err != nil {
		return nil, fmt.Errorf("claim entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return e, nil
}

// LinkProviderMessage implements Repository.
func (r *PostgresRepository) LinkProviderMessage(ctx context.Context, id uuid.UUID, providerMessageID string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE queue_entries SET provider_message_id = $2 WHERE id = $1`,
		id, providerMessageID,
	)
	if err != nil {
		return fmt.Errorf("link provider message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM queue_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// GetByProviderMessageID implements Repository.
func (r *PostgresRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*Entry, error) {
	if providerMessageID == "" {
		return nil, ErrNotFound
	}
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM queue_entries WHERE provider_message_id = $1`, providerMessageID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry by provider message id: %w", err)
	}
	return e, nil
}

// MarkDelivered implements Repository. The status guard in the WHERE clause
// makes duplicate receipts no-ops.
func (r *PostgresRepository) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'delivered', delivered_at = now()
		WHERE id = $1 AND status = 'sent'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RequeueForRetry implements Repository.
func (r *PostgresRepository) RequeueForRetry(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'pending',
		    retry_count = retry_count + 1,
		    last_error = $2,
		    provider_message_id = NULL,
		    sent_at = NULL
		WHERE id = $1 AND status = 'sent' AND retry_count < max_retries`,
		id, reason,
	)
	if err != nil {
		return false, fmt.Errorf("requeue entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed implements Repository.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'failed', retry_count = max_retries, last_error = $2
		WHERE id = $1 AND status = 'sent'`,
		id, reason,
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindStalled implements Repository.
func (r *PostgresRepository) FindStalled(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE status = 'sent' AND sent_at < $1
		ORDER BY sent_at
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find stalled entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stalled entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stalled entries: %w", err)
	}
	return out, nil
}

// CountByStatus implements Repository.
func (r *PostgresRepository) CountByStatus(ctx context.Context, recipientID, queueName string) (StatusCounts, error) {
	var counts StatusCounts
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM queue_entries
		WHERE recipient_id = $1 AND queue_name = $2`,
		recipientID, queueName,
	).Scan(&counts.Pending, &counts.Sent, &counts.Delivered, &counts.Failed)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("count entries: %w", err)
	}
	return counts, nil
}

// DeleteTerminal implements Repository. Failed entries with retries remaining
// are kept; they may still be requeued.
func (r *PostgresRepository) DeleteTerminal(ctx context.Context, recipientID, queueName string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM queue_entries
		WHERE recipient_id = $1 AND queue_name = $2
		  AND (status = 'delivered' OR (status = 'failed' AND retry_count >= max_retries))`,
		recipientID, queueName,
	)
	if err != nil {
		return 0, fmt.Errorf("delete terminal entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PostgresRepository)(nil)
var _ Repository = (*MemoryRepository)(nil)
