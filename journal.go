package ezredirect

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/mattn/go-sqlite3"
	"github.com/patrickmn/go-cache"
)

// Journal entry kinds.
const (
	JournalSet    = "set"    // permanent target change
	JournalTemp   = "temp"   // temporary override
	JournalPreset = "preset" // preset activation
	JournalRevert = "revert" // expiry observed, reverted to default
)

// recentTTL bounds the in-memory window served without touching sqlite.
const recentTTL = 15 * time.Minute

// JournalEntry is one recorded redirect-target change.
type JournalEntry struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	URL       string     `json:"url"`
	Preset    string     `json:"preset,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	At        time.Time  `json:"at"`
}

// Journal is a sqlite-backed audit trail of redirect-target changes with a
// TTL'd in-memory window for the common "what just happened" query.
type Journal struct {
	db     *sql.DB
	node   *snowflake.Node
	recent *cache.Cache
}

// OpenJournal opens or creates the journal database. The snowflake node id
// is stored in PRAGMA user_version on creation and must match on reopen.
func OpenJournal(filename string, nodeId int64) (*Journal, error) {
	if nodeId < 0 || nodeId > 1023 {
		return nil, fmt.Errorf("%v is not a valid snowflake node id", nodeId)
	}
	_, err := os.Stat(filename)
	needInit := false
	if os.IsNotExist(err) {
		file, err := os.Create(filename)
		if err != nil {
			return nil, err
		}
		_ = file.Close()
		needInit = true
	} else if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}
	if needInit {
		if _, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", nodeId)); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err = createJournalTable(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	j := &Journal{db: db, recent: cache.New(recentTTL, 5*time.Minute)}
	dbNodeId, err := j.getNodeId()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if dbNodeId != nodeId {
		_ = db.Close()
		return nil, fmt.Errorf("node id is not identical, expected %d, actually got %d", nodeId, dbNodeId)
	}
	snowflake.Epoch = 1735689600000 // 2025/1/1 0:0:0 UTC
	node, err := snowflake.NewNode(nodeId)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.node = node
	return j, nil
}

func createJournalTable(db *sql.DB) error {
	ddl := `CREATE TABLE journal (
			"id" INTEGER NOT NULL PRIMARY KEY,
			"kind" TEXT NOT NULL,
			"url" TEXT NOT NULL,
			"preset" TEXT,
			"expire_at" INTEGER,
			"at" INTEGER NOT NULL);`
	stmt, err := db.Prepare(ddl)
	if err != nil {
		return err
	}
	_, err = stmt.Exec()
	return err
}

// Append records one change. The entry lands in both sqlite and the recent
// window.
func (j *Journal) Append(kind, url, preset string, expires *time.Time, at time.Time) error {
	id := j.node.Generate()
	sqlPreset := sql.NullString{String: preset, Valid: preset != ""}
	sqlExpire := sql.NullInt64{}
	if expires != nil {
		sqlExpire = sql.NullInt64{Int64: expires.Unix(), Valid: true}
	}
	stmt, err := j.db.Prepare(`INSERT INTO journal(id, kind, url, preset, expire_at, at) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	if _, err = stmt.Exec(int64(id), kind, url, sqlPreset, sqlExpire, at.Unix()); err != nil {
		return err
	}
	entry := JournalEntry{
		ID:     id.Base58(),
		Kind:   kind,
		URL:    url,
		Preset: preset,
		At:     at.UTC().Truncate(time.Second),
	}
	if expires != nil {
		t := expires.UTC().Truncate(time.Second)
		entry.ExpiresAt = &t
	}
	j.recent.Set(entry.ID, entry, cache.DefaultExpiration)
	return nil
}

// Recent returns the in-memory window, oldest first.
func (j *Journal) Recent() []JournalEntry {
	items := j.recent.Items()
	out := make([]JournalEntry, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(JournalEntry))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].At.Equal(out[b].At) {
			return out[a].ID < out[b].ID
		}
		return out[a].At.Before(out[b].At)
	})
	return out
}

// Since queries sqlite for entries at or after t, oldest first.
func (j *Journal) Since(t time.Time) ([]JournalEntry, error) {
	stmt, err := j.db.Prepare(`SELECT id, kind, url, preset, expire_at, at FROM journal WHERE at >= ? ORDER BY at, id`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(t.Unix())
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)
	var out []JournalEntry
	for rows.Next() {
		var (
			id        int64
			entry     JournalEntry
			sqlPreset sql.NullString
			sqlExpire sql.NullInt64
			at        int64
		)
		if err = rows.Scan(&id, &entry.Kind, &entry.URL, &sqlPreset, &sqlExpire, &at); err != nil {
			return nil, err
		}
		entry.ID = snowflake.ID(id).Base58()
		if sqlPreset.Valid {
			entry.Preset = sqlPreset.String
		}
		if sqlExpire.Valid {
			t := time.Unix(sqlExpire.Int64, 0).UTC()
			entry.ExpiresAt = &t
		}
		entry.At = time.Unix(at, 0).UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Prune drops entries recorded before cutoff.
func (j *Journal) Prune(cutoff time.Time) error {
	_, err := j.db.Exec(`DELETE FROM journal WHERE at < ?`, cutoff.Unix())
	return err
}

func (j *Journal) count() (int, error) {
	row := j.db.QueryRow(`SELECT COUNT(*) FROM journal`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) getNodeId() (int64, error) {
	row, err := j.db.Query(`PRAGMA user_version`)
	if err != nil {
		return 0, err
	}
	defer func(row *sql.Rows) {
		_ = row.Close()
	}(row)
	for row.Next() {
		var userVer int64
		if err = row.Scan(&userVer); err != nil {
			return 0, err
		}
		return userVer, nil
	}
	return 0, nil
}
