package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/observability"
)

// DefaultPageSize bounds List when the caller passes a non-positive limit.
const DefaultPageSize = 200

// Repository provides Postgres-backed persistence for log rows and their change events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Apply validates the mutation, writes the row and records the change event inside a
// single transaction. Updates and deletes of a missing row return domain.ErrNotFound;
// updating a locked nutrition entry returns domain.ErrLocked and re-inserting an existing
// nutrition id returns domain.ErrValidation.
func (r *Repository) Apply(ctx context.Context, m domain.Mutation) (events.RowChanged, error) {
	m, rec, err := m.Normalize()
	if err != nil {
		return events.RowChanged{}, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return events.RowChanged{}, err
	}
	defer tx.Rollback(ctx)

	switch m.Op {
	case domain.OpInsert:
		if entry, ok := rec.(domain.NutritionLogEntry); ok && entry.Locked {
			entry.Locked = false
			if m.Row, err = json.Marshal(entry); err != nil {
				return events.RowChanged{}, err
			}
			rec = entry
		}
		err = r.insertRow(ctx, tx, m, rec)
	case domain.OpUpdate:
		m, err = r.updateRow(ctx, tx, m, rec)
	case domain.OpDelete:
		err = r.deleteRow(ctx, tx, m)
	}
	if err != nil {
		return events.RowChanged{}, err
	}

	event := events.RowChanged{
		Table:       m.Table,
		Operation:   m.Op,
		RowID:       m.RowID,
		UserID:      m.UserID,
		Row:         m.Row,
		CommittedAt: r.now().UTC(),
	}
	if err := insertOutbox(ctx, tx, event); err != nil {
		return events.RowChanged{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return events.RowChanged{}, err
	}
	observability.RecordRowPersisted(string(m.Table), event.CommittedAt)
	return event, nil
}

func (r *Repository) insertRow(ctx context.Context, tx pgx.Tx, m domain.Mutation, rec domain.Record) error {
	table := tableIdent(m.Table)
	// An insert of an id the user already owns replaces the row; ids owned by someone else are rejected.
	// Nutrition rows are never replaced, so the lock set by their one edit cannot be undone.
	conflict := fmt.Sprintf(`ON CONFLICT (id) DO UPDATE SET occurred_at = EXCLUDED.occurred_at, body = EXCLUDED.body, updated_at = NOW()
        WHERE %s.user_id = EXCLUDED.user_id`, table)
	if m.Table == domain.TableNutritionLogs {
		conflict = `ON CONFLICT (id) DO NOTHING`
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, user_id, occurred_at, body)
        VALUES ($1,$2,$3,$4)
        %s`, table, conflict)

	tag, err := tx.Exec(ctx, stmt, m.RowID, m.UserID, domain.OccurredAt(rec), []byte(m.Row))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if m.Table == domain.TableNutritionLogs {
			return fmt.Errorf("%w: %s row %s already exists", domain.ErrValidation, m.Table, m.RowID)
		}
		return fmt.Errorf("%w: %s row %s belongs to another user", domain.ErrValidation, m.Table, m.RowID)
	}
	return nil
}

func (r *Repository) updateRow(ctx context.Context, tx pgx.Tx, m domain.Mutation, rec domain.Record) (domain.Mutation, error) {
	if m.Table == domain.TableProfiles {
		// Profiles are upserted: the row exists implicitly for every user.
		return m, r.insertRow(ctx, tx, m, rec)
	}

	if entry, ok := rec.(domain.NutritionLogEntry); ok {
		var locked bool
		err := tx.QueryRow(ctx,
			`SELECT COALESCE((body->>'locked')::boolean, false) FROM nutrition_logs WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			m.RowID, m.UserID,
		).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return m, fmt.Errorf("%w: %s row %s", domain.ErrNotFound, m.Table, m.RowID)
		}
		if err != nil {
			return m, err
		}
		if locked {
			return m, fmt.Errorf("%w: nutrition entry %s", domain.ErrLocked, m.RowID)
		}
		entry.Locked = true
		body, err := json.Marshal(entry)
		if err != nil {
			return m, err
		}
		m.Row = body
		rec = entry
	}

	stmt := fmt.Sprintf(`UPDATE %s SET occurred_at = $3, body = $4, updated_at = NOW() WHERE id = $1 AND user_id = $2`, tableIdent(m.Table))
	tag, err := tx.Exec(ctx, stmt, m.RowID, m.UserID, domain.OccurredAt(rec), []byte(m.Row))
	if err != nil {
		return m, err
	}
	if tag.RowsAffected() == 0 {
		return m, fmt.Errorf("%w: %s row %s", domain.ErrNotFound, m.Table, m.RowID)
	}
	return m, nil
}

func (r *Repository) deleteRow(ctx context.Context, tx pgx.Tx, m domain.Mutation) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_id = $2`, tableIdent(m.Table))
	tag, err := tx.Exec(ctx, stmt, m.RowID, m.UserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s row %s", domain.ErrNotFound, m.Table, m.RowID)
	}
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, event events.RowChanged) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO change_outbox (aggregate_type, aggregate_id, user_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		string(event.Table),
		event.RowID,
		event.UserID,
		event.EventType(),
		event.Table.Topic(),
		event.Table.SchemaSubject(),
		event.UserID,
		body,
	)
	return err
}

// List returns the user's rows of table, most recent first, starting after cursor.
// The returned cursor is nil when the page was not full.
func (r *Repository) List(ctx context.Context, table domain.Table, userID string, cursor *domain.Cursor, limit int) ([]domain.Record, *domain.Cursor, error) {
	if !table.Valid() {
		return nil, nil, fmt.Errorf("%w: table %q", domain.ErrValidation, table)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	args := []any{userID, limit}
	query := fmt.Sprintf(`SELECT id, occurred_at, body FROM %s WHERE user_id = $1`, tableIdent(table))
	if cursor != nil {
		query += ` AND (occurred_at, id) < ($3, $4)`
		args = append(args, cursor.At, cursor.ID)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Record, 0, limit)
	var last domain.Cursor
	for rows.Next() {
		var (
			id   string
			at   time.Time
			body []byte
		)
		if err := rows.Scan(&id, &at, &body); err != nil {
			return nil, nil, err
		}
		rec, err := domain.DecodeRow(table, body)
		if err != nil {
			return nil, nil, fmt.Errorf("%s row %s: %w", table, id, err)
		}
		results = append(results, rec)
		last = domain.Cursor{At: at, ID: id}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		next = &last
	}
	return results, next, nil
}

// LoadAll pages through every row the user owns in table.
func (r *Repository) LoadAll(ctx context.Context, table domain.Table, userID string) ([]domain.Record, error) {
	var (
		all    []domain.Record
		cursor *domain.Cursor
	)
	for {
		page, next, err := r.List(ctx, table, userID, cursor, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == nil {
			return all, nil
		}
		cursor = next
	}
}

// GetProfile returns the user's profile, or nil when none has been saved.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var body []byte
	err := r.pool.QueryRow(ctx, `SELECT body FROM profiles WHERE id = $1`, userID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var profile domain.Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("profile %s: %w", userID, err)
	}
	return &profile, nil
}

// tableIdent quotes a validated table name for interpolation into SQL.
func tableIdent(t domain.Table) string {
	if !t.Valid() {
		panic(fmt.Sprintf("postgres: unsupported table %q", t))
	}
	return pgx.Identifier{string(t)}.Sanitize()
}
