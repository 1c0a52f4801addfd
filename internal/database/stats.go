package database

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM tweets", &s.TotalTweets},
		{"SELECT COUNT(*) FROM tweets WHERE split = 'train'", &s.TrainTweets},
		{"SELECT COUNT(*) FROM tweets WHERE split = 'test'", &s.TestTweets},
		{"SELECT COUNT(*) FROM tweets WHERE platform_id IS NOT NULL", &s.UploadedTweets},
		{"SELECT COUNT(DISTINCT tweet_id) FROM tweet_embeddings", &s.EmbeddedTweets},
		{"SELECT COUNT(*) FROM tweets WHERE uncertainty IS NOT NULL", &s.PrioritizedTweets},
		{"SELECT COUNT(*) FROM experiment_runs", &s.ExperimentRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
