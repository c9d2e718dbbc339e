package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/housekeeper/internal/domain"
	"github.com/redis/go-redis/v9"
)

// setPrivsScript updates privileges only for sessions that still exist.
var setPrivsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], 'priv', ARGV[1])
	return 1
end
return 0
`)

// SessionDirectory reads and mutates the live sessions the game server
// publishes into Redis.
//
// Layout (all keys namespaced by prefix):
//
//	sessions                    set of online user ids
//	session:{id}                hash: name, priv, country, donor_end, last_activity
//	session:{id}:notifications  list drained by the game server into packets
//	sessions:logout             pub/sub channel, payload is the user id
type SessionDirectory struct {
	client *redis.Client
	prefix string
}

// NewSessionDirectory creates a session directory over client
func NewSessionDirectory(client *redis.Client, prefix string) *SessionDirectory {
	return &SessionDirectory{
		client: client,
		prefix: prefix,
	}
}

func (d *SessionDirectory) onlineKey() string {
	return d.prefix + "sessions"
}

func (d *SessionDirectory) sessionKey(id int64) string {
	return fmt.Sprintf("%ssession:%d", d.prefix, id)
}

func (d *SessionDirectory) notificationsKey(id int64) string {
	return fmt.Sprintf("%ssession:%d:notifications", d.prefix, id)
}

// LogoutChannel is the pub/sub channel forced logouts are announced on
func (d *SessionDirectory) LogoutChannel() string {
	return d.prefix + "sessions:logout"
}

// Register publishes a session; the game server normally does this on login
func (d *SessionDirectory) Register(ctx context.Context, p domain.Player) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, d.sessionKey(p.ID),
			"name", p.Name,
			"priv", int64(p.Privileges),
			"country", p.Country,
			"donor_end", p.DonorEnd.Unix(),
			"last_activity", p.LastActivity.UnixMilli(),
		)
		pipe.SAdd(ctx, d.onlineKey(), p.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registering session: %w", err)
	}
	return nil
}

// Get returns the live session for id
func (d *SessionDirectory) Get(ctx context.Context, id int64) (*domain.Player, error) {
	fields, err := d.client.HGetAll(ctx, d.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrPlayerNotFound
	}
	return parseSession(id, fields)
}

// Online returns every session currently marked online
func (d *SessionDirectory) Online(ctx context.Context) ([]domain.Player, error) {
	ids, err := d.client.SMembers(ctx, d.onlineKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := d.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	parsed := make([]int64, len(ids))
	for i, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing session id %q: %w", raw, err)
		}
		parsed[i] = id
		cmds[i] = pipe.HGetAll(ctx, d.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}

	players := make([]domain.Player, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// logged out between SMEMBERS and HGETALL
			continue
		}
		p, err := parseSession(parsed[i], fields)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, nil
}

// Logout drops a session and tells the game server to close its connection
func (d *SessionDirectory) Logout(ctx context.Context, id int64) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, d.onlineKey(), id)
		pipe.Del(ctx, d.sessionKey(id), d.notificationsKey(id))
		pipe.Publish(ctx, d.LogoutChannel(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("logging out session: %w", err)
	}
	return nil
}

// Notify queues an in-game notification for an online player
func (d *SessionDirectory) Notify(ctx context.Context, id int64, message string) error {
	if err := d.client.RPush(ctx, d.notificationsKey(id), message).Err(); err != nil {
		return fmt.Errorf("queueing notification: %w", err)
	}
	return nil
}

// Notifications returns the notifications still waiting for a player
func (d *SessionDirectory) Notifications(ctx context.Context, id int64) ([]string, error) {
	msgs, err := d.client.LRange(ctx, d.notificationsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading notifications: %w", err)
	}
	return msgs, nil
}

// SetPrivileges mirrors a privilege change into a live session
func (d *SessionDirectory) SetPrivileges(ctx context.Context, id int64, priv domain.Privileges) error {
	updated, err := setPrivsScript.Run(ctx, d.client, []string{d.sessionKey(id)}, int64(priv)).Int()
	if err != nil {
		return fmt.Errorf("setting session privileges: %w", err)
	}
	if updated == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func parseSession(id int64, fields map[string]string) (*domain.Player, error) {
	p := &domain.Player{
		ID:      id,
		Name:    fields["name"],
		Country: fields["country"],
		Online:  true,
	}

	if raw := fields["priv"]; raw != "" {
		priv, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing priv for %d: %w", id, err)
		}
		p.Privileges = domain.Privileges(priv)
	}
	if raw := fields["donor_end"]; raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing donor_end for %d: %w", id, err)
		}
		p.DonorEnd = time.Unix(sec, 0)
	}
	if raw := fields["last_activity"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing last_activity for %d: %w", id, err)
		}
		p.LastActivity = time.UnixMilli(ms)
	}
	return p, nil
}
