package database

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SaveEmbeddings stores one vector per tweet ID for the given model,
// replacing earlier vectors of the same model.
func (db *DB) SaveEmbeddings(model string, vectors map[int64][]float64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO tweet_embeddings (tweet_id, model, dims, vector) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, vec := range vectors {
		if _, err := stmt.Exec(id, model, len(vec), encodeVector(vec)); err != nil {
			return fmt.Errorf("saving embedding for tweet %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// GetEmbeddings returns vectors of the given model for tweets in a split,
// keyed by tweet ID. An empty split returns every split.
func (db *DB) GetEmbeddings(model string, split Split) (map[int64][]float64, error) {
	query := `SELECT e.tweet_id, e.dims, e.vector FROM tweet_embeddings e
		JOIN tweets t ON t.id = e.tweet_id WHERE e.model = ?`
	args := []any{model}
	if split != "" {
		query += " AND t.split = ?"
		args = append(args, string(split))
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]float64)
	for rows.Next() {
		var id int64
		var dims int
		var blob []byte
		if err := rows.Scan(&id, &dims, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob, dims)
		if err != nil {
			return nil, fmt.Errorf("tweet %d: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// GetTweetsNeedingEmbedding returns tweets with no vector for the model.
func (db *DB) GetTweetsNeedingEmbedding(model string) ([]Tweet, error) {
	rows, err := db.conn.Query(
		`SELECT t.id, t.external_id, t.text, t.label, t.split, t.platform_id, t.uncertainty, t.created_at
		FROM tweets t LEFT JOIN tweet_embeddings e ON e.tweet_id = t.id AND e.model = ?
		WHERE e.tweet_id IS NULL ORDER BY t.id`, model,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTweets(rows)
}

func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dims int) ([]float64, error) {
	if len(buf) != 8*dims {
		return nil, fmt.Errorf("embedding blob has %d bytes, want %d", len(buf), 8*dims)
	}
	vec := make([]float64, dims)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, nil
}
