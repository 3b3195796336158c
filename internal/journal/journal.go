// Package journal provides an optional SQLite diagnostics journal of
// bridge events and announcements.
//
// Each record is hash-chained to its predecessor with BLAKE2b, so a
// journal handed over for a support case can be checked for gaps or
// edits. The chain proves internal consistency only; it is a debugging
// aid, not an attestation.
package journal

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"
)

// Schema for the diagnostics journal.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    seq           INTEGER NOT NULL UNIQUE,
    timestamp_ns  INTEGER NOT NULL,
    kind          TEXT NOT NULL,
    window        TEXT NOT NULL,
    slide_index   INTEGER NOT NULL,
    detail        TEXT NOT NULL,
    prev_hash     BLOB NOT NULL,
    entry_hash    BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_seq ON events(seq);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(timestamp_ns);
`

// ErrChainBroken reports a record whose hash does not extend its
// predecessor's.
var ErrChainBroken = errors.New("journal: hash chain broken")

// Entry is one journal record.
type Entry struct {
	Seq        int64
	Timestamp  time.Time
	Kind       string
	Window     string
	SlideIndex int
	Detail     string
	PrevHash   []byte
	EntryHash  []byte
}

// Journal is the SQLite-backed diagnostics journal.
type Journal struct {
	db        *sql.DB
	maxEvents int
}

// Open opens or creates the journal database at path. maxEvents bounds
// retention: once exceeded, the oldest records are pruned on append (the
// chain stays verifiable from the oldest retained record forward).
func Open(path string, maxEvents int) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Journal{db: db, maxEvents: maxEvents}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Append records one event, extending the hash chain.
func (j *Journal) Append(kind, window string, slideIndex int, detail string) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var (
		lastSeq  sql.NullInt64
		lastHash []byte
	)
	err = tx.QueryRow(`SELECT seq, entry_hash FROM events ORDER BY seq DESC LIMIT 1`).
		Scan(&lastSeq, &lastHash)
	switch {
	case err == sql.ErrNoRows:
		lastHash = make([]byte, blake2b.Size256)
	case err != nil:
		return fmt.Errorf("read chain head: %w", err)
	}

	seq := lastSeq.Int64 + 1
	ts := time.Now().UnixNano()
	entryHash := chainHash(lastHash, seq, ts, kind, window, slideIndex, detail)

	_, err = tx.Exec(`
		INSERT INTO events (seq, timestamp_ns, kind, window, slide_index, detail, prev_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, ts, kind, window, slideIndex, detail, lastHash, entryHash,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if j.maxEvents > 0 {
		_, err = tx.Exec(`DELETE FROM events WHERE seq <= ? - ?`, seq, j.maxEvents)
		if err != nil {
			return fmt.Errorf("prune events: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Recent returns the newest n entries, oldest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := j.db.Query(`
		SELECT seq, timestamp_ns, kind, window, slide_index, detail, prev_hash, entry_hash
		FROM events ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.Seq, &ts, &e.Kind, &e.Window, &e.SlideIndex, &e.Detail, &e.PrevHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	// Reverse into chronological order.
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// VerifyChain walks every retained record and checks that each entry hash
// extends its predecessor. Returns the number of verified records.
func (j *Journal) VerifyChain() (int, error) {
	rows, err := j.db.Query(`
		SELECT seq, timestamp_ns, kind, window, slide_index, detail, prev_hash, entry_hash
		FROM events ORDER BY seq ASC`)
	if err != nil {
		return 0, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	var (
		count    int
		prevHash []byte
		first    = true
	)
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.Seq, &ts, &e.Kind, &e.Window, &e.SlideIndex, &e.Detail, &e.PrevHash, &e.EntryHash); err != nil {
			return count, fmt.Errorf("scan entry: %w", err)
		}
		if first {
			// The oldest retained record anchors the walk: its stored
			// prev_hash is taken as given since pruning may have removed
			// its predecessor.
			prevHash = e.PrevHash
			first = false
		} else if !bytesEqual(prevHash, e.PrevHash) {
			return count, fmt.Errorf("%w: record %d does not reference its predecessor", ErrChainBroken, e.Seq)
		}
		want := chainHash(e.PrevHash, e.Seq, ts, e.Kind, e.Window, e.SlideIndex, e.Detail)
		if !bytesEqual(want, e.EntryHash) {
			return count, fmt.Errorf("%w: record %d hash mismatch", ErrChainBroken, e.Seq)
		}
		prevHash = e.EntryHash
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate chain: %w", err)
	}
	return count, nil
}

// Count returns the number of retained records.
func (j *Journal) Count() (int, error) {
	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// chainHash computes the entry hash over the previous hash and a
// length-delimited canonical encoding of the record fields.
func chainHash(prev []byte, seq, ts int64, kind, window string, slideIndex int, detail string) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(prev)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seq))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(int64(slideIndex)))
	h.Write(buf[:])

	for _, s := range []string{kind, window, detail} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	return h.Sum(nil)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
