package domain

import "fmt"

// GameMode identifies a ruleset, including relax and autopilot variants
type GameMode int

const (
	ModeVanillaOsu   GameMode = 0
	ModeVanillaTaiko GameMode = 1
	ModeVanillaCatch GameMode = 2
	ModeVanillaMania GameMode = 3
	ModeRelaxOsu     GameMode = 4
	ModeRelaxTaiko   GameMode = 5
	ModeRelaxCatch   GameMode = 6
	ModeAutopilotOsu GameMode = 8
)

var modeNames = map[GameMode]string{
	ModeVanillaOsu:   "vn!std",
	ModeVanillaTaiko: "vn!taiko",
	ModeVanillaCatch: "vn!catch",
	ModeVanillaMania: "vn!mania",
	ModeRelaxOsu:     "rx!std",
	ModeRelaxTaiko:   "rx!taiko",
	ModeRelaxCatch:   "rx!catch",
	ModeAutopilotOsu: "ap!std",
}

func (m GameMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Analyzable reports whether replays in this mode can be audited.
func (m GameMode) Analyzable() bool {
	switch m {
	case ModeVanillaOsu, ModeRelaxOsu, ModeAutopilotOsu:
		return true
	}
	return false
}

// Mods is the applied-mods bitset of a score
type Mods int32

const (
	ModNoFail      Mods = 1 << 0
	ModEasy        Mods = 1 << 1
	ModTouchscreen Mods = 1 << 2
	ModHidden      Mods = 1 << 3
	ModHardRock    Mods = 1 << 4
	ModSuddenDeath Mods = 1 << 5
	ModDoubleTime  Mods = 1 << 6
	ModRelax       Mods = 1 << 7
	ModHalfTime    Mods = 1 << 8
	ModNightcore   Mods = 1 << 9
	ModFlashlight  Mods = 1 << 10
)

// Has reports whether any bit of m is set.
func (v Mods) Has(m Mods) bool {
	return v&m != 0
}

// Beatmap is the map reference carried by a score
type Beatmap struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// URL returns the public beatmap page.
func (b Beatmap) URL(domain string) string {
	return fmt.Sprintf("https://osu.%s/b/%d", domain, b.ID)
}

// Score identifies a single submitted play
type Score struct {
	ID      int64    `json:"id"`
	Player  Player   `json:"player"`
	Mode    GameMode `json:"mode"`
	Mods    Mods     `json:"mods"`
	Beatmap Beatmap  `json:"beatmap"`

	// Sensitive client data, scrubbed by the sanitization pipeline.
	ClientChecksum string `json:"client_checksum,omitempty"`
	ClientFlags    int32  `json:"client_flags,omitempty"`
}

// Replay is a decoded replay handle owned by the analysis service
type Replay struct {
	ID      string
	ScoreID int64
}

// Snap is a single abrupt cursor discontinuity reported by the analysis service
type Snap struct {
	Time     float64 `json:"time"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Distance float64 `json:"distance"`
}
