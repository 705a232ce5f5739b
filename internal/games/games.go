package games

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/MJE43/coin-reward-engine/internal/prize"
	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/shopspring/decimal"
)

// Kind groups games by what decides their outcome.
type Kind string

const (
	// KindChance games resolve every round from a random draw.
	KindChance Kind = "chance"
	// KindSkill games settle rounds from the player's actions.
	KindSkill Kind = "skill"
	// KindPerformance games draw at random and grade a performance signal.
	KindPerformance Kind = "performance"
	// KindDaily games are chance games gated to one session per day.
	KindDaily Kind = "daily"
)

var ErrInvalidStake = errors.New("games: stake not offered by game")

// Spec describes a game for listings.
type Spec struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Kind        Kind    `json:"kind" yaml:"kind"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Stake       int64   `json:"stake" yaml:"stake"`
	Stakes      []int64 `json:"stakes,omitempty" yaml:"stakes"`
}

// Game is a prize table plus the session rules that go with it.
type Game struct {
	Spec
	Table  *prize.Table
	Config session.Config

	// Scripts the config's Bonus and Curve were compiled from, if any.
	BonusScript string
	CurveScript string
}

// ValidateStake checks stake against the game's offered stakes.
func (g *Game) ValidateStake(stake int64) error {
	if len(g.Stakes) > 0 {
		if slices.Contains(g.Stakes, stake) {
			return nil
		}
		return fmt.Errorf("%w: %s offers %v, got %d", ErrInvalidStake, g.ID, g.Stakes, stake)
	}
	if stake != g.Stake {
		return fmt.Errorf("%w: %s costs %d, got %d", ErrInvalidStake, g.ID, g.Stake, stake)
	}
	return nil
}

// NewTracker builds a session tracker for the game. The game ID is attached
// to every delta.
func (g *Game) NewTracker(w session.Wallet, opts ...session.Option) (*session.Tracker, error) {
	all := append([]session.Option{session.WithGame(g.ID)}, opts...)
	return session.NewTracker(g.Table, w, g.Config, all...)
}

// EntryInfo is one prize as shown in listings.
type EntryInfo struct {
	ID          string          `json:"id"`
	Probability float64         `json:"probability"`
	Value       decimal.Decimal `json:"value"`
	PerStake    bool            `json:"per_stake,omitempty"`
	Kind        prize.Kind      `json:"kind"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// Info is the public view of a game.
type Info struct {
	Spec
	Rounds        int             `json:"rounds"`
	DurationMs    int64           `json:"duration_ms"`
	HoldPayouts   bool            `json:"hold_payouts,omitempty"`
	Gated         bool            `json:"gated,omitempty"`
	HitRate       float64         `json:"hit_rate"`
	ExpectedValue decimal.Decimal `json:"expected_value"`
	BonusScript   string          `json:"bonus_script,omitempty"`
	Entries       []EntryInfo     `json:"entries"`
}

// Info summarises the game at its default stake.
func (g *Game) Info() Info {
	entries := g.Table.Entries()
	out := Info{
		Spec:          g.Spec,
		Rounds:        g.Config.Rounds,
		DurationMs:    g.Config.Duration.Milliseconds(),
		HoldPayouts:   g.Config.HoldPayouts,
		Gated:         g.Config.Gate != nil,
		HitRate:       g.Table.HitRate(),
		ExpectedValue: g.Table.ExpectedValue(g.Stake).Round(4),
		BonusScript:   g.BonusScript,
		Entries:       make([]EntryInfo, len(entries)),
	}
	for i, e := range entries {
		out.Entries[i] = EntryInfo{
			ID:          e.ID,
			Probability: g.Table.Probability(i),
			Value:       e.Value,
			PerStake:    e.PerStake,
			Kind:        e.EffectiveKind(),
			Metadata:    e.Metadata,
		}
	}
	return out
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Game)
)

// Register adds or replaces a game.
func Register(g *Game) error {
	if g == nil || g.ID == "" {
		return errors.New("games: game has no id")
	}
	if g.Table == nil {
		return fmt.Errorf("games: %s has no prize table", g.ID)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[g.ID] = g
	return nil
}

// GetGame looks a game up by ID.
func GetGame(id string) (*Game, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	g, ok := registry[id]
	return g, ok
}

// ListGames returns every registered game's spec, sorted by ID.
func ListGames() []Spec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]Spec, 0, len(registry))
	for _, g := range registry {
		specs = append(specs, g.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

func init() {
	for _, g := range builtins() {
		if err := Register(g); err != nil {
			panic(err)
		}
	}
}

func builtins() []*Game {
	return []*Game{
		luckyDraw(),
		scratchCard(),
		slotMachine(),
		spinWheel(),
		predictWin(),
		timeCapsule(),
		shakeToWin(),
		treasureHunt(),
		memoryMatch(),
		whackAMole(),
		tapToWin(),
		bubblePop(),
		reactionTester(),
		triviaQuiz(),
		wordScramble(),
	}
}

func coinEntry(id, name string, weight float64, value int64) prize.Entry {
	return prize.Entry{
		ID:       id,
		Weight:   weight,
		Value:    decimal.NewFromInt(value),
		Metadata: map[string]any{"name": name},
	}
}

func pointsEntry(id string, weight float64, value int64) prize.Entry {
	return prize.Entry{ID: id, Weight: weight, Value: decimal.NewFromInt(value), Kind: prize.KindPoints}
}

// flat disables the streak multiplier for games that have none.
var flat = session.Linear{Base: 1}
