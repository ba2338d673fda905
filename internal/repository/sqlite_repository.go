package repository

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/InfraSecConsult/nfconvert-go/lib/model"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	repo := &SQLiteRepository{db: db}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mode TEXT NOT NULL,
			input_dir TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			failure TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS units (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id INTEGER NOT NULL,
			trace_path TEXT NOT NULL,
			sort_key INTEGER NOT NULL,
			flow_file TEXT,
			status TEXT NOT NULL,
			error TEXT,
			completed_at TEXT NOT NULL,
			FOREIGN KEY (batch_id) REFERENCES batches(id)
		);`,
	}
	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("creating history tables: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) BeginBatch(batch *model.BatchRecord) (int64, error) {
	res, err := r.db.Exec(
		`INSERT INTO batches (mode, input_dir, started_at, status) VALUES (?, ?, ?, ?)`,
		batch.Mode, batch.InputDir, batch.StartedAt.Format(time.RFC3339Nano), model.BatchRunning,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	batch.ID = id
	batch.Status = model.BatchRunning
	return id, nil
}

func (r *SQLiteRepository) FinishBatch(id int64, status, failure string) error {
	_, err := r.db.Exec(
		`UPDATE batches SET finished_at = ?, status = ?, failure = ? WHERE id = ?`,
		time.Now().Format(time.RFC3339Nano), status, failure, id,
	)
	return err
}

func (r *SQLiteRepository) ListBatches() ([]*model.BatchRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, mode, input_dir, started_at, COALESCE(finished_at, ''), status, COALESCE(failure, '')
		 FROM batches ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*model.BatchRecord
	for rows.Next() {
		var b model.BatchRecord
		var started, finished string
		if err := rows.Scan(&b.ID, &b.Mode, &b.InputDir, &started, &finished, &b.Status, &b.Failure); err != nil {
			return nil, err
		}
		b.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			b.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}

func (r *SQLiteRepository) AddUnit(unit *model.UnitRecord) error {
	res, err := r.db.Exec(
		`INSERT INTO units (batch_id, trace_path, sort_key, flow_file, status, error, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		unit.BatchID, unit.TracePath, unit.SortKey, unit.FlowFile,
		unit.Status, unit.Error, unit.CompletedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	unit.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) ListUnits(batchID int64) ([]*model.UnitRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, batch_id, trace_path, sort_key, COALESCE(flow_file, ''), status, COALESCE(error, ''), completed_at
		 FROM units WHERE batch_id = ? ORDER BY sort_key, id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []*model.UnitRecord
	for rows.Next() {
		var u model.UnitRecord
		var completed string
		if err := rows.Scan(&u.ID, &u.BatchID, &u.TracePath, &u.SortKey, &u.FlowFile, &u.Status, &u.Error, &completed); err != nil {
			return nil, err
		}
		u.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
		units = append(units, &u)
	}
	return units, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
