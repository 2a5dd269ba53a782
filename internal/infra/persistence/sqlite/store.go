package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	finished_at DATETIME NOT NULL,
	record_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	source_url TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	name TEXT NOT NULL,
	address TEXT,
	phones TEXT,
	emails TEXT,
	websites TEXT,
	city TEXT,
	country TEXT,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_job ON records(job_id);
`

// Store 本地 SQLite 记录库,同一来源链接以最新一次抓取为准
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Name() string {
	return "sqlite"
}

// Write 在一个事务里 upsert 全部记录并登记任务
func (s *Store) Write(ctx context.Context, jobID string, records []model.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO records (source_url, job_id, name, address, phones, emails, websites, city, country, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_url) DO UPDATE SET
		job_id = excluded.job_id,
		name = excluded.name,
		address = excluded.address,
		phones = excluded.phones,
		emails = excluded.emails,
		websites = excluded.websites,
		city = excluded.city,
		country = excluded.country,
		updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, r := range records {
		phones, emails, websites, err := encodeLists(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.SourceURL, jobID, r.Name, r.Address, phones, emails, websites, r.City, r.Country, now); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", r.SourceURL, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO jobs (job_id, finished_at, record_count) VALUES (?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET finished_at = excluded.finished_at, record_count = excluded.record_count`,
		jobID, now, len(records)); err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}
	return tx.Commit()
}

// Records 返回某次任务写入的记录,jobID 为空时返回全部
func (s *Store) Records(ctx context.Context, jobID string) ([]model.Record, error) {
	query := `SELECT name, address, phones, emails, websites, source_url, city, country FROM records`
	var args []any
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY source_url`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			r                        model.Record
			address, city, country   sql.NullString
			phones, emails, websites sql.NullString
		)
		if err := rows.Scan(&r.Name, &address, &phones, &emails, &websites, &r.SourceURL, &city, &country); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Address, r.City, r.Country = address.String, city.String, country.String
		if err := decodeList(phones, &r.Phones); err != nil {
			return nil, err
		}
		if err := decodeList(emails, &r.Emails); err != nil {
			return nil, err
		}
		if err := decodeList(websites, &r.Websites); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// JobCount 某次任务登记的记录数
func (s *Store) JobCount(ctx context.Context, jobID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT record_count FROM jobs WHERE job_id = ?`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	return n, nil
}

func encodeLists(r model.Record) (string, string, string, error) {
	var out [3]string
	for i, list := range [][]string{r.Phones, r.Emails, r.Websites} {
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to encode list: %w", err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], nil
}

func decodeList(raw sql.NullString, dst *[]string) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw.String), &list); err != nil {
		return fmt.Errorf("failed to decode list: %w", err)
	}
	if len(list) > 0 {
		*dst = list
	}
	return nil
}
