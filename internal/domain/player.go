package domain

import (
	"fmt"
	"strings"
	"time"
)

// Privileges is the account privilege bitset shared with the game server.
type Privileges int32

const (
	PrivNormal        Privileges = 1 << 0
	PrivVerified      Privileges = 1 << 1
	PrivWhitelisted   Privileges = 1 << 2
	PrivSupporter     Privileges = 1 << 4
	PrivPremium       Privileges = 1 << 5
	PrivAlumni        Privileges = 1 << 7
	PrivTournament    Privileges = 1 << 10
	PrivNominator     Privileges = 1 << 11
	PrivModerator     Privileges = 1 << 12
	PrivAdministrator Privileges = 1 << 13
	PrivDeveloper     Privileges = 1 << 14

	// PrivDonator covers every time-limited donation tier.
	PrivDonator = PrivSupporter | PrivPremium
)

// Has reports whether any bit of p is set.
func (v Privileges) Has(p Privileges) bool {
	return v&p != 0
}

// Player represents an account as seen by the housekeeping jobs
type Player struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Privileges   Privileges `json:"priv"`
	Country      string     `json:"country"`
	DonorEnd     time.Time  `json:"donor_end"`
	LastActivity time.Time  `json:"last_activity"`
	Online       bool       `json:"online"`
}

// Restricted reports whether the account has lost its normal privilege.
func (p *Player) Restricted() bool {
	return !p.Privileges.Has(PrivNormal)
}

// ProfileURL returns the public profile link for the player.
func (p *Player) ProfileURL(domain string) string {
	return fmt.Sprintf("https://osu.%s/u/%d", domain, p.ID)
}

// AvatarURL returns the avatar link for the player.
func (p *Player) AvatarURL(domain string) string {
	return fmt.Sprintf("https://a.%s/%d", domain, p.ID)
}

func (p *Player) String() string {
	return fmt.Sprintf("<%s (%d)>", p.Name, p.ID)
}

// RankRow is one (account, mode) row used for rank recalculation
type RankRow struct {
	UserID      int64
	Privileges  Privileges
	Country     string
	Performance float64
	Mode        GameMode
}

// Region returns the normalized region key for the row.
func (r RankRow) Region() string {
	return strings.ToLower(r.Country)
}
