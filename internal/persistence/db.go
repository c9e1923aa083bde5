// Package persistence provides SQLite-based population snapshot storage.
// The core accepts a snapshot at startup and writes one periodically; no
// other schema is owned here.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/electorate/internal/voters"
)

// DB wraps a SQLite connection for snapshot persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS voters (
		id INTEGER PRIMARY KEY,
		age INTEGER NOT NULL,
		education INTEGER NOT NULL,
		income_decile INTEGER NOT NULL,
		district_x INTEGER NOT NULL,
		district_y INTEGER NOT NULL,
		tier INTEGER NOT NULL,
		pinned INTEGER NOT NULL,
		seeded_tick INTEGER NOT NULL,
		opinion_json TEXT NOT NULL,
		behavior_json TEXT NOT NULL,
		social_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sim_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_voters_tier ON voters(tier);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSnapshot writes the full population (full replace) plus the tick it
// was taken at.
func (db *DB) SaveSnapshot(store *voters.Store, tick uint64) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM voters"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO voters
		(id, age, education, income_decile, district_x, district_y,
		 tier, pinned, seeded_tick, opinion_json, behavior_json, social_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var insertErr error
	store.ForEach(func(v *voters.Voter) {
		if insertErr != nil {
			return
		}
		opinionJSON, _ := json.Marshal(v.Opinion)
		behaviorJSON, _ := json.Marshal(v.Behavior)
		socialJSON, _ := json.Marshal(v.Social)

		pinned := 0
		if v.Pinned {
			pinned = 1
		}

		_, err := stmt.Exec(
			v.ID, v.Demographics.Age, v.Demographics.Education,
			v.Demographics.IncomeDecile, v.Demographics.DistrictX, v.Demographics.DistrictY,
			v.Tier, pinned, v.SeededTick,
			string(opinionJSON), string(behaviorJSON), string(socialJSON),
		)
		if err != nil {
			insertErr = fmt.Errorf("insert voter %d: %w", v.ID, err)
		}
	})
	if insertErr != nil {
		return insertErr
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES ('last_tick', ?)",
		strconv.FormatUint(tick, 10),
	); err != nil {
		return err
	}

	// Persist the ID watermark too: if the highest-numbered voters were
	// recycled before this save, the rows alone would let a restored store
	// re-issue their IDs.
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES ('next_id', ?)",
		strconv.FormatUint(uint64(store.NextID()), 10),
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("snapshot saved", "voters", store.Len(), "tick", tick)
	return nil
}

type voterRow struct {
	ID           uint64 `db:"id"`
	Age          uint8  `db:"age"`
	Education    uint8  `db:"education"`
	IncomeDecile uint8  `db:"income_decile"`
	DistrictX    int    `db:"district_x"`
	DistrictY    int    `db:"district_y"`
	Tier         uint8  `db:"tier"`
	Pinned       int    `db:"pinned"`
	SeededTick   uint64 `db:"seeded_tick"`
	OpinionJSON  string `db:"opinion_json"`
	BehaviorJSON string `db:"behavior_json"`
	SocialJSON   string `db:"social_json"`
}

// LoadSnapshot restores the population into the store and returns the tick
// the snapshot was taken at.
func (db *DB) LoadSnapshot(store *voters.Store) (uint64, error) {
	var rows []voterRow
	if err := db.conn.Select(&rows, "SELECT * FROM voters ORDER BY id"); err != nil {
		return 0, fmt.Errorf("load voters: %w", err)
	}

	for _, r := range rows {
		v := voters.Voter{
			ID: voters.VoterID(r.ID),
			Demographics: voters.Demographics{
				Age:          r.Age,
				Education:    voters.Education(r.Education),
				IncomeDecile: r.IncomeDecile,
				DistrictX:    r.DistrictX,
				DistrictY:    r.DistrictY,
			},
			Tier:       voters.Tier(r.Tier),
			Pinned:     r.Pinned != 0,
			SeededTick: r.SeededTick,
		}
		if err := json.Unmarshal([]byte(r.OpinionJSON), &v.Opinion); err != nil {
			return 0, fmt.Errorf("voter %d opinion: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.BehaviorJSON), &v.Behavior); err != nil {
			return 0, fmt.Errorf("voter %d behavior: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.SocialJSON), &v.Social); err != nil {
			return 0, fmt.Errorf("voter %d social: %w", r.ID, err)
		}
		store.Restore(v)
	}

	if raw, err := db.GetMeta("next_id"); err == nil {
		if next, err := strconv.ParseUint(raw, 10, 64); err == nil {
			store.SetNextID(voters.VoterID(next))
		}
	}

	tick, err := db.GetMeta("last_tick")
	if err != nil {
		return 0, nil // population without a tick is still usable
	}
	t, err := strconv.ParseUint(tick, 10, 64)
	if err != nil {
		return 0, nil
	}

	slog.Info("snapshot restored", "voters", len(rows), "tick", t)
	return t, nil
}

// HasSnapshot reports whether a saved population exists.
func (db *DB) HasSnapshot() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM voters"); err != nil {
		return false
	}
	return count > 0
}

// SaveMeta stores a key-value pair in simulation metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sim_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return value, err
}
