package database

import "database/sql"

// GetPlatformResource returns a cached platform id, or nil if unknown.
func (db *DB) GetPlatformResource(kind, name string) (*PlatformResource, error) {
	row := db.conn.QueryRow(
		"SELECT kind, name, platform_id, created_at FROM platform_resources WHERE kind = ? AND name = ?",
		kind, name,
	)
	var r PlatformResource
	if err := row.Scan(&r.Kind, &r.Name, &r.PlatformID, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// PutPlatformResource inserts or replaces a cached platform id.
func (db *DB) PutPlatformResource(kind, name, platformID string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO platform_resources (kind, name, platform_id) VALUES (?, ?, ?)`,
		kind, name, platformID,
	)
	return err
}
