package database

import (
	"database/sql"
	"fmt"
)

const tweetColumns = `id, external_id, text, label, split, platform_id, uncertainty, created_at`

// InsertTweet inserts a tweet. Returns the ID on success, 0 if the external
// id is already stored.
func (db *DB) InsertTweet(t Tweet) (int64, error) {
	if err := validateTweet(t); err != nil {
		return 0, err
	}
	result, err := db.conn.Exec(
		`INSERT OR IGNORE INTO tweets (external_id, text, label, split) VALUES (?, ?, ?, ?)`,
		t.ExternalID, t.Text, t.Label, string(t.Split),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting tweet %s: %w", t.ExternalID, err)
	}
	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// InsertTweets inserts tweets in one transaction and returns how many were
// new. Duplicates are skipped.
func (db *DB) InsertTweets(tweets []Tweet) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO tweets (external_id, text, label, split) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range tweets {
		if err := validateTweet(t); err != nil {
			return 0, err
		}
		result, err := stmt.Exec(t.ExternalID, t.Text, t.Label, string(t.Split))
		if err != nil {
			return 0, fmt.Errorf("inserting tweet %s: %w", t.ExternalID, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, tx.Commit()
}

// GetTweets returns tweets of a split ordered by ID. An empty split returns
// all tweets.
func (db *DB) GetTweets(split Split) ([]Tweet, error) {
	query := "SELECT " + tweetColumns + " FROM tweets"
	var args []any
	if split != "" {
		query += " WHERE split = ?"
		args = append(args, string(split))
	}
	query += " ORDER BY id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTweets(rows)
}

// GetTweetByExternalID returns a tweet or nil if it does not exist.
func (db *DB) GetTweetByExternalID(externalID string) (*Tweet, error) {
	row := db.conn.QueryRow("SELECT "+tweetColumns+" FROM tweets WHERE external_id = ?", externalID)
	t, err := scanTweet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTweetsNeedingUpload returns training tweets without a platform row id.
func (db *DB) GetTweetsNeedingUpload() ([]Tweet, error) {
	rows, err := db.conn.Query(
		"SELECT "+tweetColumns+" FROM tweets WHERE split = ? AND platform_id IS NULL ORDER BY id",
		string(SplitTrain),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTweets(rows)
}

// SetPlatformIDs records platform row ids keyed by external id.
func (db *DB) SetPlatformIDs(ids map[string]string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for externalID, platformID := range ids {
		if _, err := tx.Exec(
			"UPDATE tweets SET platform_id = ? WHERE external_id = ?",
			platformID, externalID,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetUncertainties stores the latest uncertainty score per tweet ID.
func (db *DB) SetUncertainties(scores map[int64]float64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, u := range scores {
		if _, err := tx.Exec("UPDATE tweets SET uncertainty = ? WHERE id = ?", u, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// validateTweet rejects rows that INSERT OR IGNORE would silently drop on a
// CHECK constraint.
func validateTweet(t Tweet) error {
	if t.Label != 0 && t.Label != 1 {
		return fmt.Errorf("tweet %s: label must be 0 or 1, got %d", t.ExternalID, t.Label)
	}
	if t.Split != SplitTrain && t.Split != SplitTest {
		return fmt.Errorf("tweet %s: unknown split %q", t.ExternalID, t.Split)
	}
	return nil
}

func scanTweets(rows *sql.Rows) ([]Tweet, error) {
	var tweets []Tweet
	for rows.Next() {
		var t Tweet
		var split string
		if err := rows.Scan(&t.ID, &t.ExternalID, &t.Text, &t.Label, &split,
			&t.PlatformID, &t.Uncertainty, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Split = Split(split)
		tweets = append(tweets, t)
	}
	return tweets, rows.Err()
}

func scanTweet(row *sql.Row) (*Tweet, error) {
	var t Tweet
	var split string
	if err := row.Scan(&t.ID, &t.ExternalID, &t.Text, &t.Label, &split,
		&t.PlatformID, &t.Uncertainty, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Split = Split(split)
	return &t, nil
}
