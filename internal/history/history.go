// Package history indexes saved feedback records in sqlite so past
// assessments can be listed and inbox files are graded only once.
package history

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	_ "github.com/mattn/go-sqlite3"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// Sources of an assessment.
const (
	SourceCLI    = "cli"
	SourceServer = "server"
	SourceWatch  = "watch"
)

// Entry is one indexed assessment.
type Entry struct {
	ID          int64
	RecordID    string
	Source      string
	SourceRef   string
	// EssayDigest is Digest of the graded essay text.
	EssayDigest string
	Location    string
	Status      coach.Status
	Scores      scoring.Scores
	Level       sql.NullFloat64
	GeneratedAt time.Time
	CreatedAt   time.Time
}

// NewEntry builds an entry for an assessment saved at location.
func NewEntry(a *coach.Assessment, source, sourceRef string) Entry {
	e := Entry{
		RecordID:    a.Record.ID,
		Source:      source,
		SourceRef:   sourceRef,
		EssayDigest: Digest(a.Record.Essay),
		Location:    a.Location,
		Status:      a.Status,
		Scores:      a.Record.Scores,
		GeneratedAt: a.Record.GeneratedAt,
	}
	if a.Record.EstimatedLevel != nil {
		e.Level = sql.NullFloat64{Float64: *a.Record.EstimatedLevel, Valid: true}
	}
	return e
}

// Digest returns the hex SHA-256 of an essay as submitted.
func Digest(essay string) string {
	sum := sha256.Sum256([]byte(essay))
	return hex.EncodeToString(sum[:])
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; concurrent saves queue on the pool.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id    TEXT NOT NULL UNIQUE,
		source       TEXT NOT NULL DEFAULT 'cli',
		source_ref   TEXT DEFAULT '',
		essay_sha256 TEXT DEFAULT '',
		location     TEXT DEFAULT '',
		status       TEXT NOT NULL,
		cohesion     REAL NOT NULL,
		syntax       REAL NOT NULL,
		vocabulary   REAL NOT NULL,
		phraseology  REAL NOT NULL,
		grammar      REAL NOT NULL,
		conventions  REAL NOT NULL,
		level        REAL,
		generated_at DATETIME NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_generated_at ON assessments(generated_at);
	CREATE INDEX IF NOT EXISTS idx_assessments_source_ref ON assessments(source_ref);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Migration: add essay_sha256 to databases created before it existed.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('assessments') WHERE name = 'essay_sha256'`).Scan(&colCount)
	if colCount == 0 {
		if _, err := db.Exec(`ALTER TABLE assessments ADD COLUMN essay_sha256 TEXT DEFAULT ''`); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func Insert(db *sql.DB, e Entry) error {
	s := e.Scores
	_, err := db.Exec(
		`INSERT INTO assessments (record_id, source, source_ref, essay_sha256, location, status,
		   cohesion, syntax, vocabulary, phraseology, grammar, conventions, level, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RecordID, e.Source, e.SourceRef, e.EssayDigest, e.Location, string(e.Status),
		s[scoring.Cohesion], s[scoring.Syntax], s[scoring.Vocabulary],
		s[scoring.Phraseology], s[scoring.Grammar], s[scoring.Conventions],
		e.Level, e.GeneratedAt.UTC(),
	)
	return err
}

// Graded reports whether an essay with this digest was already recorded
// under sourceRef. A new essay saved under a reused name is not graded.
func Graded(db *sql.DB, sourceRef, digest string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM assessments WHERE source_ref = ? AND essay_sha256 = ?",
		sourceRef, digest).Scan(&count)
	return count > 0, err
}

const selectEntries = `SELECT id, record_id, source, source_ref, essay_sha256, location, status,
	cohesion, syntax, vocabulary, phraseology, grammar, conventions, level, generated_at, created_at
	FROM assessments`

// Recent returns the latest entries, newest first.
func Recent(db *sql.DB, limit int) ([]Entry, error) {
	return query(db, selectEntries+` ORDER BY generated_at DESC, id DESC LIMIT ?`, limit)
}

// Between returns entries generated in [from, to), oldest first.
func Between(db *sql.DB, from, to time.Time) ([]Entry, error) {
	return query(db, selectEntries+` WHERE generated_at >= ? AND generated_at < ? ORDER BY generated_at, id`,
		from.UTC(), to.UTC())
}

func query(db *sql.DB, q string, args ...any) ([]Entry, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		s := &e.Scores
		err := rows.Scan(
			&e.ID, &e.RecordID, &e.Source, &e.SourceRef, &e.EssayDigest, &e.Location, &status,
			&s[scoring.Cohesion], &s[scoring.Syntax], &s[scoring.Vocabulary],
			&s[scoring.Phraseology], &s[scoring.Grammar], &s[scoring.Conventions],
			&e.Level, &e.GeneratedAt, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Status = coach.Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Averages returns the mean score per rubric item over entries.
func Averages(entries []Entry) scoring.Scores {
	var sum scoring.Scores
	if len(entries) == 0 {
		return sum
	}
	for _, e := range entries {
		for i, v := range e.Scores {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] /= float64(len(entries))
	}
	return sum
}
