package housekeeping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/housekeeper/internal/domain"
)

const expiryText = "Your supporter status has expired."

func TestDonationReaperRevokesAndNotifiesOnlinePlayers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	expired := now.Add(-time.Hour)

	online := domain.Player{ID: 1, Name: "online", Privileges: domain.PrivNormal | domain.PrivSupporter, DonorEnd: expired}
	offline := domain.Player{ID: 2, Name: "offline", Privileges: domain.PrivNormal | domain.PrivPremium, DonorEnd: expired}
	active := domain.Player{ID: 3, Name: "active", Privileges: domain.PrivNormal | domain.PrivSupporter, DonorEnd: now.Add(time.Hour)}

	records := newFakeRecords(online, offline, active)
	sessions := newFakeSessions(online)

	r := NewDonationReaper(records, sessions, expiryText, testLogger())
	r.now = func() time.Time { return now }

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, domain.PrivNormal, records.users[1].Privileges)
	assert.Equal(t, domain.PrivNormal, records.users[2].Privileges)
	assert.True(t, records.users[1].DonorEnd.IsZero())
	assert.True(t, records.users[3].Privileges.Has(domain.PrivSupporter))

	assert.Equal(t, domain.PrivNormal, sessions.players[1].Privileges)
	assert.Equal(t, []string{expiryText}, sessions.notifications[1])
	assert.Empty(t, sessions.notifications[2])

	for _, at := range records.revokeAt {
		assert.Equal(t, now, at)
	}
}

func TestDonationReaperSkipsUnresolvedPlayer(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	records := newFakeRecords(domain.Player{ID: 5, Privileges: domain.PrivSupporter, DonorEnd: now.Add(-time.Minute)})

	// listed but gone from both stores by the time it is resolved
	r := NewDonationReaper(&vanishingRecords{fakeRecords: records}, newFakeSessions(), expiryText, testLogger())
	r.now = func() time.Time { return now }

	assert.NoError(t, r.Run(context.Background()))
	assert.Empty(t, records.revokeAt)
}

type vanishingRecords struct {
	*fakeRecords
}

func (v *vanishingRecords) GetPlayer(context.Context, int64) (*domain.Player, error) {
	return nil, domain.ErrPlayerNotFound
}

func TestDonationReaperReportsSessionFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	records := newFakeRecords(domain.Player{ID: 5, Privileges: domain.PrivSupporter, DonorEnd: now})
	sessions := newFakeSessions()
	boom := errors.New("redis down")
	sessions.getErr = boom

	r := NewDonationReaper(records, sessions, expiryText, testLogger())
	r.now = func() time.Time { return now }

	assert.ErrorIs(t, r.Run(context.Background()), boom)
}

func TestBotStatusRefresherInvalidates(t *testing.T) {
	cache := &fakeBotCache{}
	r := NewBotStatusRefresher(cache, testLogger())

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, cache.invalidations)

	cache.err = errors.New("redis down")
	assert.Error(t, r.Run(context.Background()))
}

func TestGhostReaperStrictThreshold(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	threshold := 100 * time.Second

	sessions := newFakeSessions(
		domain.Player{ID: 1, Name: "fresh", LastActivity: now.Add(-10 * time.Second)},
		domain.Player{ID: 2, Name: "edge", LastActivity: now.Add(-threshold)},
		domain.Player{ID: 3, Name: "ghost", LastActivity: now.Add(-threshold - time.Millisecond)},
	)

	calls := 0
	r := NewGhostReaper(sessions, threshold, testLogger())
	r.now = func() time.Time {
		calls++
		// later reads would push "edge" over the threshold
		return now.Add(time.Duration(calls-1) * time.Minute)
	}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int64{3}, sessions.loggedOut)
}

func TestGhostReaperContinuesPastLogoutFailure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sessions := newFakeSessions(
		domain.Player{ID: 1, Name: "stuck", LastActivity: now.Add(-time.Hour)},
		domain.Player{ID: 2, Name: "ghost", LastActivity: now.Add(-time.Hour)},
	)
	boom := errors.New("redis down")
	sessions.logoutErr[1] = boom

	r := NewGhostReaper(sessions, 100*time.Second, testLogger())
	r.now = func() time.Time { return now }

	assert.ErrorIs(t, r.Run(context.Background()), boom)
	assert.Equal(t, []int64{2}, sessions.loggedOut)
}

func TestRankRecalculatorWritesTwoEntriesPerNormalRow(t *testing.T) {
	records := newFakeRecords()
	records.rows = []domain.RankRow{
		{UserID: 1, Privileges: domain.PrivNormal | domain.PrivVerified, Country: "KR", Performance: 727.5, Mode: domain.ModeVanillaOsu},
		{UserID: 2, Privileges: domain.PrivVerified, Country: "US", Performance: 900, Mode: domain.ModeRelaxOsu},
		{UserID: 3, Privileges: domain.PrivNormal, Country: "jp", Performance: 12, Mode: domain.ModeRelaxOsu},
	}
	boards := &fakeLeaderboards{}
	operator := &fakeOperator{}

	r := NewRankRecalculator(records, boards, operator, "#staff", testLogger())
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, []announcement{{"#staff", RankRecalcStarted}}, operator.sent)
	assert.Equal(t, []upsert{
		{"leaderboard:0", 1, 727.5},
		{"leaderboard:0:kr", 1, 727.5},
		{"leaderboard:4", 3, 12},
		{"leaderboard:4:jp", 3, 12},
	}, boards.writes)
}

func TestRankRecalculatorAnnouncesEvenWhenListingFails(t *testing.T) {
	records := newFakeRecords()
	records.rowsErr = errors.New("db down")
	operator := &fakeOperator{}

	r := NewRankRecalculator(records, &fakeLeaderboards{}, operator, "#staff", testLogger())
	assert.Error(t, r.Run(context.Background()))
	assert.Len(t, operator.sent, 1)
}
