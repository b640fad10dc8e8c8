package store

import "errors"

// Sentinel errors for store operations. Part of the Store's public API;
// check with errors.Is().
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// userStatsID is the fixed identifier of the singleton user_stats row.
const userStatsID = 1
