package housekeeping

import (
	"context"
	"time"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/worker"
)

// SessionDirectory is the live session registry owned by the game server
type SessionDirectory interface {
	Get(ctx context.Context, id int64) (*domain.Player, error)
	Online(ctx context.Context) ([]domain.Player, error)
	Logout(ctx context.Context, id int64) error
	Notify(ctx context.Context, id int64, message string) error
	SetPrivileges(ctx context.Context, id int64, priv domain.Privileges) error
}

// RecordStore is the relational account store
type RecordStore interface {
	ExpiredDonors(ctx context.Context, now time.Time) ([]int64, error)
	GetPlayer(ctx context.Context, id int64) (*domain.Player, error)
	RevokeDonor(ctx context.Context, id int64, now time.Time) (domain.Privileges, bool, error)
	RankRows(ctx context.Context) ([]domain.RankRow, error)
}

// LeaderboardStore holds the ranking sorted sets
type LeaderboardStore interface {
	Upsert(ctx context.Context, key string, userID int64, performance float64) error
}

// BotStatusCache is the cached presence of the server bot
type BotStatusCache interface {
	Invalidate(ctx context.Context) error
}

// OperatorChannel posts plain-text lines to a named staff channel
type OperatorChannel interface {
	Announce(channel, text string)
}

// ScoreQueue is a blocking FIFO of scores
type ScoreQueue interface {
	Dequeue(ctx context.Context) (domain.Score, error)
}

// Submitter runs tasks on a bounded pool
type Submitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// Clock returns the current time; jobs take one so tests can pin it
type Clock func() time.Time
