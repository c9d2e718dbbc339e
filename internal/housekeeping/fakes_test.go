package housekeeping

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/housekeeper/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessions struct {
	mu            sync.Mutex
	players       map[int64]domain.Player
	notifications map[int64][]string
	loggedOut     []int64
	getErr        error
	logoutErr     map[int64]error
}

func newFakeSessions(players ...domain.Player) *fakeSessions {
	s := &fakeSessions{
		players:       make(map[int64]domain.Player),
		notifications: make(map[int64][]string),
		logoutErr:     make(map[int64]error),
	}
	for _, p := range players {
		p.Online = true
		s.players[p.ID] = p
	}
	return s
}

func (s *fakeSessions) Get(_ context.Context, id int64) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.players[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &p, nil
}

func (s *fakeSessions) Online(context.Context) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeSessions) Logout(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.logoutErr[id]; err != nil {
		return err
	}
	delete(s.players, id)
	s.loggedOut = append(s.loggedOut, id)
	return nil
}

func (s *fakeSessions) Notify(_ context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[id] = append(s.notifications[id], message)
	return nil
}

func (s *fakeSessions) SetPrivileges(_ context.Context, id int64, priv domain.Privileges) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.Privileges = priv
	s.players[id] = p
	return nil
}

type fakeRecords struct {
	mu       sync.Mutex
	users    map[int64]domain.Player
	rows     []domain.RankRow
	listedAt []time.Time
	revokeAt []time.Time
	rowsErr  error
}

func newFakeRecords(users ...domain.Player) *fakeRecords {
	r := &fakeRecords{users: make(map[int64]domain.Player)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeRecords) ExpiredDonors(_ context.Context, now time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listedAt = append(r.listedAt, now)
	var ids []int64
	for id, u := range r.users {
		if !u.DonorEnd.After(now) && u.Privileges.Has(domain.PrivDonator) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeRecords) GetPlayer(_ context.Context, id int64) (*domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &u, nil
}

func (r *fakeRecords) RevokeDonor(_ context.Context, id int64, now time.Time) (domain.Privileges, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokeAt = append(r.revokeAt, now)
	u, ok := r.users[id]
	if !ok || u.DonorEnd.After(now) || !u.Privileges.Has(domain.PrivDonator) {
		return 0, false, nil
	}
	u.Privileges &^= domain.PrivDonator
	u.DonorEnd = time.Time{}
	r.users[id] = u
	return u.Privileges, true, nil
}

func (r *fakeRecords) RankRows(context.Context) ([]domain.RankRow, error) {
	return r.rows, r.rowsErr
}

type upsert struct {
	key         string
	userID      int64
	performance float64
}

type fakeLeaderboards struct {
	mu     sync.Mutex
	writes []upsert
	err    error
}

func (l *fakeLeaderboards) Upsert(_ context.Context, key string, userID int64, performance float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.writes = append(l.writes, upsert{key, userID, performance})
	return nil
}

type announcement struct {
	channel string
	text    string
}

type fakeOperator struct {
	mu   sync.Mutex
	sent []announcement
}

func (o *fakeOperator) Announce(channel, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, announcement{channel, text})
}

type fakeBotCache struct {
	invalidations int
	err           error
}

func (c *fakeBotCache) Invalidate(context.Context) error {
	if c.err != nil {
		return c.err
	}
	c.invalidations++
	return nil
}
