package tiles

import "time"

// StoreKey is the single durable-storage slot for the session record. The
// cache holds one active session per process, not partitioned by map type.
const StoreKey = "tile_session"

// SessionRecord is the short-lived session issued by the external tile
// service. Only SessionID and Expiry drive caching decisions; the rest is
// descriptive metadata echoed back by the issuing service.
type SessionRecord struct {
	SessionID   string    `json:"session"`
	Expiry      time.Time `json:"expiry"`
	ImageFormat string    `json:"image_format,omitempty"`
	TileWidth   int       `json:"tile_width,omitempty"`
	TileHeight  int       `json:"tile_height,omitempty"`
}

// Valid reports whether the record can still be used at the given instant.
// A record without an expiry is treated as already expired.
func (r *SessionRecord) Valid(now time.Time) bool {
	if r == nil || r.SessionID == "" {
		return false
	}
	if r.Expiry.IsZero() {
		return false
	}
	return now.Before(r.Expiry)
}
