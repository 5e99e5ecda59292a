package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"flatbot/internal/model"
	"flatbot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const listingColumns = `id, idealista_url, title, price, price_value, rooms, size, floor,
	description, thumbnail, stage, notes, position, priority, source, created_at, updated_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateListing inserts a new listing and populates its ID, position, and
// timestamps. The position is assigned atomically as max(position in the
// target stage)+1.
func (s *SQLite) CreateListing(ctx context.Context, l *model.Listing) error {
	if l.Stage == "" {
		l.Stage = model.StageToBeCommunicated
	}
	if !model.ValidStage(l.Stage) {
		return fmt.Errorf("%w: %q", ErrInvalidStage, l.Stage)
	}
	if l.Source == "" {
		l.Source = model.SourceManual
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (idealista_url, title, price, price_value, rooms, size, floor,
		                       description, thumbnail, stage, notes, position, priority, source,
		                       created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		         COALESCE((SELECT MAX(position) FROM listings WHERE stage = ?), 0) + 1,
		         ?, ?, ?, ?)`,
		nullString(l.IdealistaURL), l.Title, l.Price, l.PriceValue, l.Rooms, l.Size, l.Floor,
		l.Description, l.Thumbnail, string(l.Stage), l.Notes, string(l.Stage),
		l.Priority, string(l.Source), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	created, err := s.GetListing(ctx, id)
	if err != nil {
		return err
	}
	*l = *created
	return nil
}

// GetListing returns a single listing by its ID.
func (s *SQLite) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	return scanListing(row)
}

// GetListingByURL returns the listing with the given canonical URL.
func (s *SQLite) GetListingByURL(ctx context.Context, url string) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE idealista_url = ?`, url)
	return scanListing(row)
}

// UpdateListing applies a partial patch to a listing; only supplied fields
// change and updated_at is refreshed.
func (s *SQLite) UpdateListing(ctx context.Context, id int64, patch model.ListingPatch) (*model.Listing, error) {
	if _, err := s.GetListing(ctx, id); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.GetListing(ctx, id)
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Price != nil {
		set("price", *patch.Price)
	}
	if patch.PriceValue != nil {
		set("price_value", *patch.PriceValue)
	}
	if patch.Rooms != nil {
		set("rooms", *patch.Rooms)
	}
	if patch.Size != nil {
		set("size", *patch.Size)
	}
	if patch.Floor != nil {
		set("floor", *patch.Floor)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Thumbnail != nil {
		set("thumbnail", *patch.Thumbnail)
	}
	if patch.IdealistaURL != nil {
		set("idealista_url", nullString(*patch.IdealistaURL))
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
	}
	set("updated_at", time.Now().UTC().Format(timeLayout))

	args = append(args, id)
	query := "UPDATE listings SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	return s.GetListing(ctx, id)
}

// UpdateStage moves a listing to the given stage at the caller-supplied
// position.
func (s *SQLite) UpdateStage(ctx context.Context, id int64, stage model.Stage, position int) (*model.Listing, error) {
	if !model.ValidStage(stage) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET stage = ?, position = ?, updated_at = ? WHERE id = ?`,
		string(stage), position, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetListing(ctx, id)
}

// ReorderColumn rewrites positions within a stage to match the order of ids.
// Ids not currently in that stage are silently skipped.
func (s *SQLite) ReorderColumn(ctx context.Context, stage model.Stage, ids []int64) error {
	if !model.ValidStage(stage) {
		return fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for position, id := range ids {
		_, err := tx.ExecContext(ctx,
			`UPDATE listings SET position = ?, updated_at = ? WHERE id = ? AND stage = ?`,
			position, now, id, string(stage),
		)
		if err != nil {
			return fmt.Errorf("reorder listing %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// DeleteListing soft-deletes a listing by appending it to the deleted stage.
func (s *SQLite) DeleteListing(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings
		 SET stage = ?,
		     position = COALESCE((SELECT MAX(position) FROM listings WHERE stage = ?), 0) + 1,
		     updated_at = ?
		 WHERE id = ?`,
		string(model.StageDeleted), string(model.StageDeleted), now, id,
	)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroupedByStage returns all listings grouped by stage, ordered by
// priority descending then position ascending. Every known stage key is
// present even when empty.
func (s *SQLite) ListGroupedByStage(ctx context.Context) (map[model.Stage][]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY priority DESC, position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	grouped := make(map[model.Stage][]model.Listing, len(model.Stages))
	for _, stage := range model.Stages {
		grouped[stage] = make([]model.Listing, 0)
	}

	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		if _, ok := grouped[l.Stage]; !ok {
			continue
		}
		grouped[l.Stage] = append(grouped[l.Stage], *l)
	}
	return grouped, rows.Err()
}

// MaxPosition returns the highest position in a stage, zero when empty.
func (s *SQLite) MaxPosition(ctx context.Context, stage model.Stage) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM listings WHERE stage = ?`,
		string(stage),
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return max, nil
}

// UpsertByURL inserts l or refreshes the existing record with the same
// canonical URL. An existing record keeps its notes, priority, and source;
// its scraped fields are refreshed and it is promoted to target (appended to
// that column) unless it is already there. Runs as one transaction.
func (s *SQLite) UpsertByURL(ctx context.Context, l *model.Listing, target model.Stage) (*model.Listing, UpsertOutcome, error) {
	if !model.ValidStage(target) {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidStage, target)
	}
	if l.IdealistaURL == "" {
		return nil, "", fmt.Errorf("upsert requires a listing URL")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)

	row := tx.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE idealista_url = ?`, l.IdealistaURL)
	existing, err := scanListing(row)

	switch {
	case err == nil:
		outcome := UpsertExists
		_, err = tx.ExecContext(ctx,
			`UPDATE listings SET title = ?, price = ?, price_value = ?, rooms = ?, size = ?,
			        floor = ?, description = ?, thumbnail = ?, updated_at = ?
			 WHERE id = ?`,
			l.Title, l.Price, l.PriceValue, l.Rooms, l.Size,
			l.Floor, l.Description, l.Thumbnail, now, existing.ID,
		)
		if err != nil {
			return nil, "", fmt.Errorf("refresh listing: %w", err)
		}

		if existing.Stage != target {
			outcome = UpsertPromoted
			_, err = tx.ExecContext(ctx,
				`UPDATE listings
				 SET stage = ?,
				     position = COALESCE((SELECT MAX(position) FROM listings WHERE stage = ?), 0) + 1
				 WHERE id = ?`,
				string(target), string(target), existing.ID,
			)
			if err != nil {
				return nil, "", fmt.Errorf("promote listing: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return nil, "", fmt.Errorf("commit: %w", err)
		}
		updated, err := s.GetListing(ctx, existing.ID)
		if err != nil {
			return nil, "", err
		}
		return updated, outcome, nil

	case errors.Is(err, ErrNotFound):
		source := l.Source
		if source == "" {
			source = model.SourceManual
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO listings (idealista_url, title, price, price_value, rooms, size, floor,
			                       description, thumbnail, stage, notes, position, priority, source,
			                       created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			         COALESCE((SELECT MAX(position) FROM listings WHERE stage = ?), 0) + 1,
			         ?, ?, ?, ?)`,
			l.IdealistaURL, l.Title, l.Price, l.PriceValue, l.Rooms, l.Size, l.Floor,
			l.Description, l.Thumbnail, string(target), l.Notes, string(target),
			l.Priority, string(source), now, now,
		)
		if err != nil {
			return nil, "", fmt.Errorf("insert listing: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, "", fmt.Errorf("last insert id: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, "", fmt.Errorf("commit: %w", err)
		}
		created, err := s.GetListing(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return created, UpsertCreated, nil

	default:
		return nil, "", err
	}
}

// FilterUnknownURLs returns the subset of urls with no listing record,
// preserving input order.
func (s *SQLite) FilterUnknownURLs(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(urls)), ", ")
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idealista_url FROM listings WHERE idealista_url IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query known urls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	known := make(map[string]struct{}, len(urls))
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		known[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unknown []string
	for _, u := range urls {
		if _, ok := known[u]; !ok {
			unknown = append(unknown, u)
		}
	}
	return unknown, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (*model.Listing, error) {
	var l model.Listing
	var idealistaURL sql.NullString
	var stage, source string
	var created, updated string

	err := row.Scan(&l.ID, &idealistaURL, &l.Title, &l.Price, &l.PriceValue,
		&l.Rooms, &l.Size, &l.Floor, &l.Description, &l.Thumbnail,
		&stage, &l.Notes, &l.Position, &l.Priority, &source, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}

	l.IdealistaURL = idealistaURL.String
	l.Stage = model.Stage(stage)
	l.Source = model.Source(source)
	l.CreatedAt, _ = time.Parse(timeLayout, created)
	l.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &l, nil
}
