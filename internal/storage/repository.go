package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"patrimonio/internal/core"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRepository is the persistence boundary for entities, buildings,
// budget items and share tokens. It is the concrete implementation behind
// the ledger and share service ports.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- Entities ---

func (r *SQLiteRepository) CreateEntity(ctx context.Context, name, description string) (core.Entity, error) {
	e := core.Entity{
		EntityID:    uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	e.UpdatedAt = e.CreatedAt
	if err := e.Validate(); err != nil {
		return core.Entity{}, err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entities (entity_id, name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.EntityID, e.Name, e.Description, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return core.Entity{}, fmt.Errorf("create entity: %w", err)
	}

	slog.InfoContext(ctx, "Entity created", "entity_id", e.EntityID, "name", e.Name)
	return e, nil
}

func (r *SQLiteRepository) GetEntity(ctx context.Context, entityID string) (core.Entity, error) {
	var e core.Entity
	var description sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT entity_id, name, description, created_at, updated_at
		 FROM entities WHERE entity_id = ?`, entityID).
		Scan(&e.EntityID, &e.Name, &description, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entity{}, fmt.Errorf("entity %s: %w", entityID, core.ErrNotFound)
	}
	if err != nil {
		return core.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	e.Description = description.String
	return e, nil
}

func (r *SQLiteRepository) ListEntities(ctx context.Context) ([]core.Entity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entity_id, name, description, created_at, updated_at
		 FROM entities ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []core.Entity
	for rows.Next() {
		var e core.Entity
		var description sql.NullString
		if err := rows.Scan(&e.EntityID, &e.Name, &description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Description = description.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateEntity(ctx context.Context, entityID, name, description string) error {
	if err := (core.Entity{EntityID: entityID, Name: name}).Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE entities SET name = ?, description = ?, updated_at = ? WHERE entity_id = ?`,
		name, description, time.Now().UTC(), entityID)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s: %w", entityID, core.ErrNotFound)
	}
	return nil
}

// DeleteEntity removes the entity and everything hanging off it: buildings,
// their budget items and documents, and the entity's share tokens. The
// cascade runs in one transaction.
func (r *SQLiteRepository) DeleteEntity(ctx context.Context, entityID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete entity: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM budget_items WHERE building_id IN (SELECT building_id FROM buildings WHERE entity_id = ?)`,
		`DELETE FROM documents WHERE building_id IN (SELECT building_id FROM buildings WHERE entity_id = ?)`,
		`DELETE FROM share_tokens WHERE entity_id = ?`,
		`DELETE FROM buildings WHERE entity_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, entityID); err != nil {
			return fmt.Errorf("cascade delete entity: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s: %w", entityID, core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete entity: %w", err)
	}
	slog.InfoContext(ctx, "Entity deleted", "entity_id", entityID)
	return nil
}

func (r *SQLiteRepository) EntityExists(ctx context.Context, entityID string) error {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM entities WHERE entity_id = ?`, entityID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("entity %s: %w", entityID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check entity: %w", err)
	}
	return nil
}

// --- Buildings ---

func (r *SQLiteRepository) CreateBuilding(ctx context.Context, entityID, name, address string) (core.Building, error) {
	if err := r.EntityExists(ctx, entityID); err != nil {
		return core.Building{}, err
	}
	b := core.Building{
		BuildingID: uuid.NewString(),
		EntityID:   entityID,
		Name:       name,
		Address:    address,
		CreatedAt:  time.Now().UTC(),
	}
	b.UpdatedAt = b.CreatedAt
	if err := b.Validate(); err != nil {
		return core.Building{}, err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO buildings (building_id, entity_id, name, address, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.BuildingID, b.EntityID, b.Name, b.Address, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return core.Building{}, fmt.Errorf("create building: %w", err)
	}

	slog.InfoContext(ctx, "Building created",
		"building_id", b.BuildingID, "entity_id", entityID, "name", name)
	return b, nil
}

func (r *SQLiteRepository) GetBuilding(ctx context.Context, buildingID string) (core.Building, error) {
	var b core.Building
	var address sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT building_id, entity_id, name, address, created_at, updated_at
		 FROM buildings WHERE building_id = ?`, buildingID).
		Scan(&b.BuildingID, &b.EntityID, &b.Name, &address, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Building{}, fmt.Errorf("building %s: %w", buildingID, core.ErrNotFound)
	}
	if err != nil {
		return core.Building{}, fmt.Errorf("get building: %w", err)
	}
	b.Address = address.String
	return b, nil
}

func (r *SQLiteRepository) ListBuildingsByEntity(ctx context.Context, entityID string) ([]core.Building, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT building_id, entity_id, name, address, created_at, updated_at
		 FROM buildings WHERE entity_id = ? ORDER BY created_at DESC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list buildings: %w", err)
	}
	defer rows.Close()

	var out []core.Building
	for rows.Next() {
		var b core.Building
		var address sql.NullString
		if err := rows.Scan(&b.BuildingID, &b.EntityID, &b.Name, &address, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan building: %w", err)
		}
		b.Address = address.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBuilding changes name and address. The owning entity is immutable
// after creation and deliberately not part of the update.
func (r *SQLiteRepository) UpdateBuilding(ctx context.Context, buildingID, name, address string) error {
	if err := (core.Building{BuildingID: buildingID, Name: name}).Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE buildings SET name = ?, address = ?, updated_at = ? WHERE building_id = ?`,
		name, address, time.Now().UTC(), buildingID)
	if err != nil {
		return fmt.Errorf("update building: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("building %s: %w", buildingID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteBuilding(ctx context.Context, buildingID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete building: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM budget_items WHERE building_id = ?`,
		`DELETE FROM documents WHERE building_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, buildingID); err != nil {
			return fmt.Errorf("cascade delete building: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM buildings WHERE building_id = ?`, buildingID)
	if err != nil {
		return fmt.Errorf("delete building: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("building %s: %w", buildingID, core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete building: %w", err)
	}
	slog.InfoContext(ctx, "Building deleted", "building_id", buildingID)
	return nil
}

func (r *SQLiteRepository) BuildingExists(ctx context.Context, buildingID string) error {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM buildings WHERE building_id = ?`, buildingID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("building %s: %w", buildingID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check building: %w", err)
	}
	return nil
}

// --- Budget items ---

// UpsertBudgetBatch writes every line of a batch in one transaction. Each
// line is a native insert-or-update keyed on the (building, month, category)
// uniqueness constraint, so a same-triple race serializes inside SQLite and
// the last committed write wins; there is no application-level
// read-then-write. Either the whole batch commits or none of it does.
func (r *SQLiteRepository) UpsertBudgetBatch(ctx context.Context, buildingID string, lines []core.BudgetLine) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO budget_items
		   (budget_item_id, building_id, month_year, category, amount_cents, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (building_id, month_year, category) DO UPDATE SET
		   amount_cents = excluded.amount_cents,
		   notes        = excluded.notes,
		   updated_at   = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var affected int64
	for _, line := range lines {
		res, err := stmt.ExecContext(ctx,
			uuid.NewString(), buildingID, line.Month.Key(), line.Category,
			line.Amount.Cents, line.Notes, now, now)
		if err != nil {
			return 0, fmt.Errorf("upsert budget item (%s %s): %w", line.Category, line.Month, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch upsert: %w", err)
	}

	slog.InfoContext(ctx, "Budget batch upserted",
		"building_id", buildingID, "lines", len(lines), "rows_affected", affected)
	return affected, nil
}

// GetBudgetItems returns a building's items inside the inclusive month
// window, ordered by (category, month). Missing combinations are not
// materialized; absence means zero and is synthesized by the aggregation
// engine.
func (r *SQLiteRepository) GetBudgetItems(ctx context.Context, buildingID string, window core.MonthRange) ([]core.BudgetItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT budget_item_id, building_id, month_year, category, amount_cents, notes, created_at, updated_at
		 FROM budget_items
		 WHERE building_id = ? AND month_year >= ? AND month_year <= ?
		 ORDER BY category, month_year`,
		buildingID, window.From.Key(), window.To.Key())
	if err != nil {
		return nil, fmt.Errorf("get budget items: %w", err)
	}
	defer rows.Close()
	return scanBudgetItems(rows)
}

// GetEntityBudgetItems returns the items of every building owned by the
// entity inside the window; the caller rolls them up.
func (r *SQLiteRepository) GetEntityBudgetItems(ctx context.Context, entityID string, window core.MonthRange) ([]core.BudgetItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bi.budget_item_id, bi.building_id, bi.month_year, bi.category, bi.amount_cents, bi.notes, bi.created_at, bi.updated_at
		 FROM budget_items bi
		 JOIN buildings b ON bi.building_id = b.building_id
		 WHERE b.entity_id = ? AND bi.month_year >= ? AND bi.month_year <= ?
		 ORDER BY bi.category, bi.month_year`,
		entityID, window.From.Key(), window.To.Key())
	if err != nil {
		return nil, fmt.Errorf("get entity budget items: %w", err)
	}
	defer rows.Close()
	return scanBudgetItems(rows)
}

func scanBudgetItems(rows *sql.Rows) ([]core.BudgetItem, error) {
	var out []core.BudgetItem
	for rows.Next() {
		var it core.BudgetItem
		var monthKey string
		var notes sql.NullString
		if err := rows.Scan(&it.BudgetItemID, &it.BuildingID, &monthKey, &it.Category,
			&it.Amount.Cents, &notes, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget item: %w", err)
		}
		month, err := core.ParseMonth(monthKey)
		if err != nil {
			return nil, fmt.Errorf("stored month %q: %w", monthKey, err)
		}
		it.Month = month
		it.Notes = notes.String
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- Share tokens ---

func (r *SQLiteRepository) InsertShareToken(ctx context.Context, tok core.ShareToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO share_tokens (token, entity_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		tok.Token, tok.EntityID, tok.CreatedAt, tok.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert share token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetShareToken(ctx context.Context, token string) (core.ShareToken, error) {
	var tok core.ShareToken
	err := r.db.QueryRowContext(ctx,
		`SELECT token, entity_id, created_at, expires_at
		 FROM share_tokens WHERE token = ?`, token).
		Scan(&tok.Token, &tok.EntityID, &tok.CreatedAt, &tok.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ShareToken{}, fmt.Errorf("share token: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.ShareToken{}, fmt.Errorf("get share token: %w", err)
	}
	return tok, nil
}

// LiveShareToken returns the newest token for the entity that is still live
// at instant now, or core.ErrNotFound when none exists.
func (r *SQLiteRepository) LiveShareToken(ctx context.Context, entityID string, now time.Time) (core.ShareToken, error) {
	var tok core.ShareToken
	err := r.db.QueryRowContext(ctx,
		`SELECT token, entity_id, created_at, expires_at
		 FROM share_tokens
		 WHERE entity_id = ? AND expires_at > ?
		 ORDER BY created_at DESC
		 LIMIT 1`, entityID, now).
		Scan(&tok.Token, &tok.EntityID, &tok.CreatedAt, &tok.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ShareToken{}, fmt.Errorf("live share token for entity %s: %w", entityID, core.ErrNotFound)
	}
	if err != nil {
		return core.ShareToken{}, fmt.Errorf("get live share token: %w", err)
	}
	return tok, nil
}

// DeleteExpiredShareTokens garbage-collects tokens past expiry. Expired
// tokens are inert either way; this only bounds table growth.
func (r *SQLiteRepository) DeleteExpiredShareTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM share_tokens WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired share tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Expired share tokens purged", "count", n)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteShareTokensForEntity(ctx context.Context, entityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM share_tokens WHERE entity_id = ?`, entityID)
	if err != nil {
		return 0, fmt.Errorf("delete share tokens for entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	slog.InfoContext(ctx, "Share tokens revoked", "entity_id", entityID, "count", n)
	return n, nil
}
