// Package sqlite provides a SQLite-backed cartsync.Store: the mirror of
// last-known-good server entities, the pending action log and the sync
// metadata, all in one database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	cartsync "github.com/c0deZ3R0/go-cart-sync"
	"github.com/c0deZ3R0/go-cart-sync/entity"
	syncErrors "github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Operation constants for consistent error reporting
const (
	opOpen         syncErrors.Operation = "sqlite.Open"
	opLists        syncErrors.Operation = "sqlite.Lists"
	opSetList      syncErrors.Operation = "sqlite.SetList"
	opDeleteList   syncErrors.Operation = "sqlite.DeleteList"
	opReplaceLists syncErrors.Operation = "sqlite.ReplaceLists"
	opItems        syncErrors.Operation = "sqlite.Items"
	opSetItem      syncErrors.Operation = "sqlite.SetItem"
	opDeleteItem   syncErrors.Operation = "sqlite.DeleteItem"
	opReplaceItems syncErrors.Operation = "sqlite.ReplaceItems"
	opCategories   syncErrors.Operation = "sqlite.Categories"
	opAggregates   syncErrors.Operation = "sqlite.Aggregates"
	opAppend       syncErrors.Operation = "sqlite.Append"
	opPending      syncErrors.Operation = "sqlite.Pending"
	opUpdate       syncErrors.Operation = "sqlite.Update"
	opRemove       syncErrors.Operation = "sqlite.Remove"
	opMeta         syncErrors.Operation = "sqlite.Meta"
)

// ErrStoreClosed is returned by every operation after Close.
var ErrStoreClosed = errors.New("store is closed")

// Config holds configuration options for the SQLite store.
//
// Production-ready defaults are applied by DefaultConfig() including WAL
// mode and a bounded connection pool.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:cartsync.db?_journal_mode=WAL"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to
	// DataSourceName.
	EnableWAL bool

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "_journal_mode=") {
			if strings.Contains(c.DataSourceName, "?") {
				c.DataSourceName += "&_journal_mode=WAL"
			} else {
				c.DataSourceName += "?_journal_mode=WAL"
			}
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Store implements cartsync.Store on SQLite.
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *logging.Logger
}

// Compile-time check that Store satisfies the full persistence contract
var _ cartsync.Store = (*Store)(nil)

// New creates a SQLite store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.Default().WithComponent("sqlite-store")
	logger.Info("opening sqlite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, storageErr(opOpen, err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr(opOpen, err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, storageErr(opOpen, err)
	}
	return store, nil
}

// NewWithDataSource is a convenience constructor using DefaultConfig.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS lists (
        id            TEXT PRIMARY KEY,
        name          TEXT NOT NULL,
        version       INTEGER NOT NULL DEFAULT 0,
        created_at    INTEGER NOT NULL DEFAULT 0,
        updated_at    INTEGER NOT NULL DEFAULT 0,
        total_items   INTEGER NOT NULL DEFAULT 0,
        checked_items INTEGER NOT NULL DEFAULT 0,
        total_price   REAL NOT NULL DEFAULT 0
    );
    CREATE TABLE IF NOT EXISTS items (
        id              TEXT PRIMARY KEY,
        list_id         TEXT NOT NULL,
        name            TEXT NOT NULL,
        quantity        INTEGER NOT NULL DEFAULT 1,
        unit            TEXT,
        category_id     TEXT NOT NULL DEFAULT '',
        checked         INTEGER NOT NULL DEFAULT 0,
        checked_by      TEXT,
        checked_by_name TEXT,
        price           REAL,
        store           TEXT,
        sort_order      INTEGER NOT NULL DEFAULT 0,
        version         INTEGER NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_items_list_id ON items (list_id);
    CREATE TABLE IF NOT EXISTS categories (
        id         TEXT PRIMARY KEY,
        name       TEXT NOT NULL,
        icon       TEXT NOT NULL DEFAULT '',
        color      TEXT NOT NULL DEFAULT '',
        sort_order INTEGER NOT NULL DEFAULT 0,
        is_default INTEGER NOT NULL DEFAULT 0
    );
    CREATE TABLE IF NOT EXISTS pending_actions (
        id          TEXT PRIMARY KEY,
        type        TEXT NOT NULL,
        endpoint    TEXT NOT NULL,
        method      TEXT NOT NULL,
        payload     TEXT,
        created_at  INTEGER NOT NULL,
        retry_count INTEGER NOT NULL DEFAULT 0,
        last_error  TEXT NOT NULL DEFAULT ''
    );
    CREATE TABLE IF NOT EXISTS sync_meta (
        id           INTEGER PRIMARY KEY CHECK (id = 1),
        last_sync_at INTEGER NOT NULL DEFAULT 0,
        device_id    TEXT NOT NULL DEFAULT ''
    );
    `
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func storageErr(op syncErrors.Operation, err error) error {
	e := syncErrors.NewStorageError(op, err)
	e.Component = "storage/sqlite"
	return e
}

// GetList returns one mirrored list, or nil when it is not mirrored.
func (s *Store) GetList(ctx context.Context, id string) (*entity.ListWithCounts, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, version, created_at, updated_at, total_items, checked_items, total_price
        FROM lists WHERE id = ?`, id)

	var l entity.ListWithCounts
	err := row.Scan(&l.ID, &l.Name, &l.Version, &l.CreatedAt, &l.UpdatedAt,
		&l.TotalItems, &l.CheckedItems, &l.TotalPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(opLists, err)
	}
	return &l, nil
}

func (s *Store) SetList(ctx context.Context, list *entity.ListWithCounts) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO lists (id, name, version, created_at, updated_at, total_items, checked_items, total_price)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            version = excluded.version,
            created_at = excluded.created_at,
            updated_at = excluded.updated_at,
            total_items = excluded.total_items,
            checked_items = excluded.checked_items,
            total_price = excluded.total_price`,
		list.ID, list.Name, list.Version, list.CreatedAt, list.UpdatedAt,
		list.TotalItems, list.CheckedItems, list.TotalPrice)
	if err != nil {
		return storageErr(opSetList, err)
	}
	return nil
}

func (s *Store) DeleteList(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(opDeleteList, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE list_id = ?`, id); err != nil {
		return storageErr(opDeleteList, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id); err != nil {
		return storageErr(opDeleteList, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(opDeleteList, err)
	}
	return nil
}

func (s *Store) Lists(ctx context.Context) ([]entity.ListWithCounts, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, name, version, created_at, updated_at, total_items, checked_items, total_price
        FROM lists ORDER BY created_at, id`)
	if err != nil {
		return nil, storageErr(opLists, err)
	}
	defer rows.Close()

	var lists []entity.ListWithCounts
	for rows.Next() {
		var l entity.ListWithCounts
		if err := rows.Scan(&l.ID, &l.Name, &l.Version, &l.CreatedAt, &l.UpdatedAt,
			&l.TotalItems, &l.CheckedItems, &l.TotalPrice); err != nil {
			return nil, storageErr(opLists, err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(opLists, err)
	}
	return lists, nil
}

func (s *Store) ReplaceLists(ctx context.Context, lists []entity.ListWithCounts) error {
	if err := s.guard(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(opReplaceLists, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lists`); err != nil {
		return storageErr(opReplaceLists, err)
	}
	for i := range lists {
		l := &lists[i]
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO lists (id, name, version, created_at, updated_at, total_items, checked_items, total_price)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.Name, l.Version, l.CreatedAt, l.UpdatedAt,
			l.TotalItems, l.CheckedItems, l.TotalPrice); err != nil {
			return storageErr(opReplaceLists, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr(opReplaceLists, err)
	}
	return nil
}

// GetItem returns one mirrored item, or nil when it is not mirrored.
func (s *Store) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT id, list_id, name, quantity, unit, category_id, checked,
               checked_by, checked_by_name, price, store, sort_order, version
        FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(opItems, err)
	}
	return item, nil
}

func (s *Store) SetItem(ctx context.Context, item *entity.Item) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO items (id, list_id, name, quantity, unit, category_id, checked,
                           checked_by, checked_by_name, price, store, sort_order, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            list_id = excluded.list_id,
            name = excluded.name,
            quantity = excluded.quantity,
            unit = excluded.unit,
            category_id = excluded.category_id,
            checked = excluded.checked,
            checked_by = excluded.checked_by,
            checked_by_name = excluded.checked_by_name,
            price = excluded.price,
            store = excluded.store,
            sort_order = excluded.sort_order,
            version = excluded.version`,
		item.ID, item.ListID, item.Name, item.Quantity, item.Unit, item.CategoryID,
		item.Checked, item.CheckedBy, item.CheckedByName, item.Price, item.Store,
		item.SortOrder, item.Version)
	if err != nil {
		return storageErr(opSetItem, err)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return storageErr(opDeleteItem, err)
	}
	return nil
}

func (s *Store) ItemsByList(ctx context.Context, listID string) ([]entity.Item, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, list_id, name, quantity, unit, category_id, checked,
               checked_by, checked_by_name, price, store, sort_order, version
        FROM items WHERE list_id = ? ORDER BY sort_order, id`, listID)
	if err != nil {
		return nil, storageErr(opItems, err)
	}
	defer rows.Close()

	var items []entity.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storageErr(opItems, err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(opItems, err)
	}
	return items, nil
}

func (s *Store) ReplaceListItems(ctx context.Context, listID string, items []entity.Item) error {
	if err := s.guard(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(opReplaceItems, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE list_id = ?`, listID); err != nil {
		return storageErr(opReplaceItems, err)
	}
	for i := range items {
		it := &items[i]
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO items (id, list_id, name, quantity, unit, category_id, checked,
                               checked_by, checked_by_name, price, store, sort_order, version)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, listID, it.Name, it.Quantity, it.Unit, it.CategoryID,
			it.Checked, it.CheckedBy, it.CheckedByName, it.Price, it.Store,
			it.SortOrder, it.Version); err != nil {
			return storageErr(opReplaceItems, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr(opReplaceItems, err)
	}
	return nil
}

func (s *Store) Categories(ctx context.Context) ([]entity.Category, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, name, icon, color, sort_order, is_default
        FROM categories ORDER BY sort_order, id`)
	if err != nil {
		return nil, storageErr(opCategories, err)
	}
	defer rows.Close()

	var categories []entity.Category
	for rows.Next() {
		var c entity.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.SortOrder, &c.IsDefault); err != nil {
			return nil, storageErr(opCategories, err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(opCategories, err)
	}
	return categories, nil
}

func (s *Store) ReplaceCategories(ctx context.Context, categories []entity.Category) error {
	if err := s.guard(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(opCategories, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return storageErr(opCategories, err)
	}
	for i := range categories {
		c := &categories[i]
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO categories (id, name, icon, color, sort_order, is_default)
            VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Icon, c.Color, c.SortOrder, c.IsDefault); err != nil {
			return storageErr(opCategories, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr(opCategories, err)
	}
	return nil
}

// RecomputeListAggregates rewrites the list's aggregate columns from its
// items in a single statement. Unpriced items count toward the totals but
// contribute nothing to the price.
func (s *Store) RecomputeListAggregates(ctx context.Context, listID string) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
        UPDATE lists SET
            total_items = (SELECT COUNT(*) FROM items WHERE list_id = ?),
            checked_items = (SELECT COUNT(*) FROM items WHERE list_id = ? AND checked = 1),
            total_price = (SELECT IFNULL(SUM(price * quantity), 0) FROM items WHERE list_id = ? AND price IS NOT NULL)
        WHERE id = ?`, listID, listID, listID, listID)
	if err != nil {
		return storageErr(opAggregates, err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, action *cartsync.PendingAction) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO pending_actions (id, type, endpoint, method, payload, created_at, retry_count, last_error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, string(action.Type), action.Endpoint, action.Method,
		string(action.Payload), action.CreatedAt, action.RetryCount, action.LastError)
	if err != nil {
		return storageErr(opAppend, err)
	}
	return nil
}

func (s *Store) Pending(ctx context.Context) ([]cartsync.PendingAction, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, type, endpoint, method, payload, created_at, retry_count, last_error
        FROM pending_actions ORDER BY id`)
	if err != nil {
		return nil, storageErr(opPending, err)
	}
	defer rows.Close()

	var actions []cartsync.PendingAction
	for rows.Next() {
		var a cartsync.PendingAction
		var actionType, payload string
		if err := rows.Scan(&a.ID, &actionType, &a.Endpoint, &a.Method, &payload,
			&a.CreatedAt, &a.RetryCount, &a.LastError); err != nil {
			return nil, storageErr(opPending, err)
		}
		a.Type = cartsync.ActionType(actionType)
		if payload != "" {
			a.Payload = []byte(payload)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(opPending, err)
	}
	return actions, nil
}

func (s *Store) Update(ctx context.Context, action *cartsync.PendingAction) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
        UPDATE pending_actions SET retry_count = ?, last_error = ? WHERE id = ?`,
		action.RetryCount, action.LastError, action.ID)
	if err != nil {
		return storageErr(opUpdate, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id); err != nil {
		return storageErr(opRemove, err)
	}
	return nil
}

func (s *Store) PendingCount(ctx context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions`).Scan(&count); err != nil {
		return 0, storageErr(opPending, err)
	}
	return count, nil
}

func (s *Store) LoadMeta(ctx context.Context) (*cartsync.SyncMeta, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	var meta cartsync.SyncMeta
	err := s.db.QueryRowContext(ctx, `SELECT last_sync_at, device_id FROM sync_meta WHERE id = 1`).
		Scan(&meta.LastSyncAt, &meta.DeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(opMeta, err)
	}
	return &meta, nil
}

func (s *Store) SaveMeta(ctx context.Context, meta *cartsync.SyncMeta) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sync_meta (id, last_sync_at, device_id) VALUES (1, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            last_sync_at = excluded.last_sync_at,
            device_id = excluded.device_id`,
		meta.LastSyncAt, meta.DeviceID)
	if err != nil {
		return storageErr(opMeta, err)
	}
	return nil
}

// Close closes the database. Further operations return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*entity.Item, error) {
	var it entity.Item
	var unit, checkedBy, checkedByName, store sql.NullString
	var price sql.NullFloat64
	err := row.Scan(&it.ID, &it.ListID, &it.Name, &it.Quantity, &unit, &it.CategoryID,
		&it.Checked, &checkedBy, &checkedByName, &price, &store, &it.SortOrder, &it.Version)
	if err != nil {
		return nil, err
	}
	if unit.Valid {
		it.Unit = &unit.String
	}
	if checkedBy.Valid {
		it.CheckedBy = &checkedBy.String
	}
	if checkedByName.Valid {
		it.CheckedByName = &checkedByName.String
	}
	if price.Valid {
		it.Price = &price.Float64
	}
	if store.Valid {
		it.Store = &store.String
	}
	return &it, nil
}
