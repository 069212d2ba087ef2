package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// RateLimitEvent represents a rate limit violation event.
type RateLimitEvent struct {
	ID        int64
	DeviceID  string // empty when the request carried no device (stored as NULL)
	IP        string
	CreatedAt string
}

// InsertRateLimitEvent inserts a rate limit violation event.
func (db *ServerDB) InsertRateLimitEvent(deviceID, ip string) error {
	var deviceParam any
	if deviceID != "" {
		deviceParam = deviceID
	}
	_, err := db.conn.Exec(
		`INSERT INTO rate_limit_events (device_id, ip) VALUES (?, ?)`,
		deviceParam, ip,
	)
	if err != nil {
		return fmt.Errorf("insert rate limit event: %w", err)
	}
	return nil
}

// RecentRateLimitEvents returns up to limit events, newest first.
func (db *ServerDB) RecentRateLimitEvents(limit int) ([]RateLimitEvent, error) {
	rows, err := db.conn.Query(`SELECT id, device_id, ip, created_at FROM rate_limit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rate limit events: %w", err)
	}
	defer rows.Close()

	var events []RateLimitEvent
	for rows.Next() {
		var e RateLimitEvent
		var device sql.NullString
		if err := rows.Scan(&e.ID, &device, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.DeviceID = device.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupRateLimitEvents deletes events older than the given duration.
// Returns the number of rows deleted.
func (db *ServerDB) CleanupRateLimitEvents(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	res, err := db.conn.Exec(
		`DELETE FROM rate_limit_events WHERE created_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
