package database

import "database/sql"

// InsertRun records a new experiment run.
func (db *DB) InsertRun(r ExperimentRun) error {
	_, err := db.conn.Exec(
		`INSERT INTO experiment_runs (id, batch_size, rounds, seed, embedding_model, train_size, test_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BatchSize, r.Rounds, r.Seed, r.EmbeddingModel, r.TrainSize, r.TestSize,
	)
	return err
}

// InsertBatchResults stores per-round scores for a run.
func (db *DB) InsertBatchResults(results []BatchResult) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range results {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO batch_results (run_id, strategy, round, train_size, roc_auc)
			VALUES (?, ?, ?, ?, ?)`,
			r.RunID, r.Strategy, r.Round, r.TrainSize, r.ROCAUC,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRun returns a run by ID, or nil if it does not exist.
func (db *DB) GetRun(id string) (*ExperimentRun, error) {
	row := db.conn.QueryRow(
		`SELECT id, batch_size, rounds, seed, embedding_model, train_size, test_size, created_at
		FROM experiment_runs WHERE id = ?`, id,
	)
	var r ExperimentRun
	if err := row.Scan(&r.ID, &r.BatchSize, &r.Rounds, &r.Seed, &r.EmbeddingModel,
		&r.TrainSize, &r.TestSize, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// GetAllRuns returns runs, newest first.
func (db *DB) GetAllRuns() ([]ExperimentRun, error) {
	rows, err := db.conn.Query(
		`SELECT id, batch_size, rounds, seed, embedding_model, train_size, test_size, created_at
		FROM experiment_runs ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ExperimentRun
	for rows.Next() {
		var r ExperimentRun
		if err := rows.Scan(&r.ID, &r.BatchSize, &r.Rounds, &r.Seed, &r.EmbeddingModel,
			&r.TrainSize, &r.TestSize, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLatestRun returns the most recent run, or nil if none exist.
func (db *DB) GetLatestRun() (*ExperimentRun, error) {
	runs, err := db.GetAllRuns()
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// GetBatchResults returns a run's results ordered by strategy then round.
func (db *DB) GetBatchResults(runID string) ([]BatchResult, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, strategy, round, train_size, roc_auc FROM batch_results
		WHERE run_id = ? ORDER BY strategy, round`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []BatchResult
	for rows.Next() {
		var r BatchResult
		if err := rows.Scan(&r.RunID, &r.Strategy, &r.Round, &r.TrainSize, &r.ROCAUC); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
