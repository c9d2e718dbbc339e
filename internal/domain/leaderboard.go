package domain

import "fmt"

// GlobalLeaderboardKey returns the ranking key for a mode
func GlobalLeaderboardKey(mode GameMode) string {
	return fmt.Sprintf("leaderboard:%d", int(mode))
}

// RegionLeaderboardKey returns the ranking key for a mode within one region
func RegionLeaderboardKey(mode GameMode, region string) string {
	return fmt.Sprintf("leaderboard:%d:%s", int(mode), region)
}

// LeaderboardEntry represents a single ranked member of a leaderboard key
type LeaderboardEntry struct {
	Key         string  `json:"key"`
	UserID      int64   `json:"user_id"`
	Performance float64 `json:"performance"`
}
