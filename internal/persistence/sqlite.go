package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
	"github.com/ytget/media-taskd/internal/platform"
)

// SQLiteFileName is created inside the configured data directory
const SQLiteFileName = "tasks.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS download_tasks (
	id               TEXT PRIMARY KEY,
	position         INTEGER NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	platform         TEXT NOT NULL DEFAULT '',
	thumbnail        TEXT NOT NULL DEFAULT '',
	author           TEXT NOT NULL DEFAULT '',
	url              TEXT NOT NULL,
	quality          TEXT NOT NULL DEFAULT '',
	destination_path TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	progress_percent REAL NOT NULL DEFAULT 0,
	downloaded_bytes INTEGER NOT NULL DEFAULT 0,
	total_bytes      INTEGER NOT NULL DEFAULT 0,
	total_estimated  INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT NOT NULL DEFAULT '',
	resume_cursor    TEXT NOT NULL DEFAULT '',
	created_ns       INTEGER NOT NULL DEFAULT 0,
	started_ns       INTEGER NOT NULL DEFAULT 0,
	finished_ns      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_download_tasks_position ON download_tasks (position);
`

const sqliteColumns = `id, position, title, platform, thumbnail, author, url, quality,
	destination_path, status, progress_percent, downloaded_bytes, total_bytes,
	total_estimated, last_error, resume_cursor, created_ns, started_ns, finished_ns`

// SQLiteGateway keeps the task table in a local SQLite file
type SQLiteGateway struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenSQLite opens (or creates) dataDir/tasks.db
func OpenSQLite(dataDir string, log *logger.Logger) (*SQLiteGateway, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := platform.CreateDirectoryIfNotExists(dataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbFile := filepath.Join(dataDir, SQLiteFileName)
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer avoids SQLITE_BUSY between the persister and restore
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		log.Warnw("sqlite_pragma_failed", "error", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Infow("sqlite_opened", "path", dbFile)
	return &SQLiteGateway{db: db, log: log}, nil
}

// SaveAll replaces the stored table with tasks in one transaction
func (g *SQLiteGateway) SaveAll(ctx context.Context, tasks []model.DownloadTask) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM download_tasks`); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO download_tasks (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, task := range tasks {
		r := toRecord(task, i)
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Position, r.Title, r.Platform, r.Thumbnail, r.Author, r.URL, r.Quality,
			r.DestinationPath, r.Status, r.ProgressPercent, r.DownloadedBytes, r.TotalBytes,
			r.TotalEstimated, r.LastError, r.ResumeCursor, r.CreatedNs, r.StartedNs, r.FinishedNs,
		); err != nil {
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadAll returns stored tasks in insertion order
func (g *SQLiteGateway) LoadAll(ctx context.Context) ([]model.DownloadTask, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM download_tasks ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.DownloadTask
	for rows.Next() {
		var r TaskRecord
		if err := rows.Scan(
			&r.ID, &r.Position, &r.Title, &r.Platform, &r.Thumbnail, &r.Author, &r.URL, &r.Quality,
			&r.DestinationPath, &r.Status, &r.ProgressPercent, &r.DownloadedBytes, &r.TotalBytes,
			&r.TotalEstimated, &r.LastError, &r.ResumeCursor, &r.CreatedNs, &r.StartedNs, &r.FinishedNs,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, r.Task())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (g *SQLiteGateway) Close() error {
	return g.db.Close()
}
