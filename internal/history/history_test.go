package history

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/scoring"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history-test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndQuery(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	level := 3.5

	first := NewEntry(&coach.Assessment{
		Status:   coach.StatusComplete,
		Location: "essay_feedback/feedback_2026-05-01_12-00-00.json",
		Record: coach.Record{
			ID:             "rec-1",
			GeneratedAt:    base,
			Scores:         scoring.Scores{3, 3.5, 4, 4.5, 5, 5.5},
			EstimatedLevel: &level,
		},
	}, SourceCLI, "")
	second := NewEntry(&coach.Assessment{
		Status: coach.StatusPartial,
		Record: coach.Record{
			ID:          "rec-2",
			GeneratedAt: base.Add(time.Hour),
			Scores:      scoring.Scores{5, 5.5, 6, 6.5, 7, 7.5},
		},
	}, SourceWatch, "inbox/essay-2.txt")

	for _, e := range []Entry{first, second} {
		if err := Insert(db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	if err := Insert(db, first); err == nil {
		t.Error("expected duplicate record id to be rejected")
	}

	recent, err := Recent(db, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(recent))
	}
	if recent[0].RecordID != "rec-2" || recent[1].RecordID != "rec-1" {
		t.Errorf("Recent order = %s, %s", recent[0].RecordID, recent[1].RecordID)
	}
	if recent[0].Status != coach.StatusPartial || recent[0].Level.Valid {
		t.Errorf("rec-2 = %+v", recent[0])
	}
	if got := recent[1]; got.Scores != first.Scores || !got.Level.Valid || got.Level.Float64 != 3.5 {
		t.Errorf("rec-1 = %+v", got)
	}
	if !recent[1].GeneratedAt.Equal(base) {
		t.Errorf("GeneratedAt = %v, want %v", recent[1].GeneratedAt, base)
	}

	between, err := Between(db, base, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Between failed: %v", err)
	}
	if len(between) != 1 || between[0].RecordID != "rec-1" {
		t.Errorf("Between = %+v", between)
	}

	limited, err := Recent(db, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("Recent(1) = %d entries, err %v", len(limited), err)
	}
}

func TestGraded(t *testing.T) {
	db := newTestDB(t)
	first := NewEntry(&coach.Assessment{
		Status: coach.StatusComplete,
		Record: coach.Record{ID: "r1", Essay: "First essay about dogs.", GeneratedAt: time.Now()},
	}, SourceWatch, "inbox/essay.txt")
	if first.EssayDigest != Digest("First essay about dogs.") {
		t.Fatalf("EssayDigest = %q", first.EssayDigest)
	}
	if err := Insert(db, first); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	tests := []struct {
		name string
		ref  string
		text string
		want bool
	}{
		{"same file same text", "inbox/essay.txt", "First essay about dogs.", true},
		{"reused name new text", "inbox/essay.txt", "A different essay about cats.", false},
		{"same text other file", "inbox/other.txt", "First essay about dogs.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Graded(db, tt.ref, Digest(tt.text))
			if err != nil {
				t.Fatalf("Graded failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Graded = %v, want %v", got, tt.want)
			}
		})
	}

	recent, err := Recent(db, 1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("Recent = %v, %v", recent, err)
	}
	if recent[0].EssayDigest != first.EssayDigest {
		t.Errorf("stored digest = %q, want %q", recent[0].EssayDigest, first.EssayDigest)
	}
}

func TestOpenAddsDigestColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	old, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	_, err = old.Exec(`CREATE TABLE assessments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT 'cli',
		source_ref TEXT DEFAULT '',
		location TEXT DEFAULT '',
		status TEXT NOT NULL,
		cohesion REAL NOT NULL, syntax REAL NOT NULL, vocabulary REAL NOT NULL,
		phraseology REAL NOT NULL, grammar REAL NOT NULL, conventions REAL NOT NULL,
		level REAL,
		generated_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	INSERT INTO assessments (record_id, source_ref, status, cohesion, syntax, vocabulary,
		phraseology, grammar, conventions, generated_at)
	VALUES ('old', 'inbox/a.txt', 'complete', 1, 1, 1, 1, 1, 1, '2026-01-01 00:00:00');`)
	if err != nil {
		t.Fatalf("creating old schema: %v", err)
	}
	_ = old.Close()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	entries, err := Recent(db, 10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Recent = %v, %v", entries, err)
	}
	if entries[0].EssayDigest != "" {
		t.Errorf("migrated digest = %q, want empty", entries[0].EssayDigest)
	}
	if err := Insert(db, Entry{RecordID: "new", SourceRef: "inbox/a.txt", EssayDigest: Digest("x"), Status: coach.StatusComplete, GeneratedAt: time.Now()}); err != nil {
		t.Fatalf("Insert after migration failed: %v", err)
	}
}

func TestAverages(t *testing.T) {
	got := Averages([]Entry{
		{Scores: scoring.Scores{2, 2, 2, 2, 2, 2}},
		{Scores: scoring.Scores{4, 6, 8, 2, 2, 3}},
	})
	want := scoring.Scores{3, 4, 5, 2, 2, 2.5}
	if got != want {
		t.Errorf("Averages = %v, want %v", got, want)
	}
	if !Averages(nil).IsZero() {
		t.Error("Averages(nil) should be zero")
	}
}
