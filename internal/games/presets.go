package games

import (
	"fmt"
	"os"
	"time"

	"github.com/MJE43/coin-reward-engine/internal/gate"
	"github.com/MJE43/coin-reward-engine/internal/prize"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/MJE43/coin-reward-engine/internal/scripting"
	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PresetFile is the YAML layout read by LoadPresets.
//
//	games:
//	  - id: lucky-draw-plus
//	    name: Lucky Draw+
//	    kind: chance
//	    stake: 50
//	    rounds: 1
//	    remainder: {total: 1, id: try_again}
//	    entries:
//	      - {id: jackpot, weight: 0.01, value: 2000}
type PresetFile struct {
	Games []Preset `yaml:"games"`
}

// Preset is one game as written in a preset file.
type Preset struct {
	Spec        `yaml:",inline"`
	Rounds      int           `yaml:"rounds"`
	Duration    string        `yaml:"duration"`
	Ceiling     float64       `yaml:"ceiling"`
	Curve       *curveDoc     `yaml:"curve"`
	CurveScript string        `yaml:"curve_script"`
	StreakBonus int64         `yaml:"streak_bonus"`
	DecayWindow string        `yaml:"decay_window"`
	HoldPayouts bool          `yaml:"hold_payouts"`
	Deplete     bool          `yaml:"deplete"`
	BustOn      []string      `yaml:"bust_on"`
	FinishOn    []string      `yaml:"finish_on"`
	BonusScript string        `yaml:"bonus_script"`
	// Daily names the time zone whose midnight reopens the game.
	Daily     string        `yaml:"daily"`
	Ladder    *ladderDoc    `yaml:"ladder"`
	Remainder *remainderDoc `yaml:"remainder"`
	Entries   []entryDoc    `yaml:"entries"`
}

type curveDoc struct {
	Base  float64   `yaml:"base"`
	Step  float64   `yaml:"step"`
	Steps []float64 `yaml:"steps"`
}

type ladderDoc struct {
	LowerIsBetter bool   `yaml:"lower_is_better"`
	Fallback      string `yaml:"fallback"`
	Rungs         []struct {
		ID        string   `yaml:"id"`
		Threshold *float64 `yaml:"threshold"`
		MinCount  int      `yaml:"min_count"`
	} `yaml:"rungs"`
}

type remainderDoc struct {
	Total float64 `yaml:"total"`
	ID    string  `yaml:"id"`
}

type entryDoc struct {
	ID       string         `yaml:"id"`
	Weight   float64        `yaml:"weight"`
	Value    amount         `yaml:"value"`
	PerStake bool           `yaml:"per_stake"`
	Kind     prize.Kind     `yaml:"kind"`
	Metadata map[string]any `yaml:"metadata"`
}

// amount reads a YAML scalar such as 25, 0.5 or "12.75" as an exact decimal.
type amount struct {
	decimal.Decimal
}

func (a *amount) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: value must be a number", n.Line)
	}
	d, err := decimal.NewFromString(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: value %q: %w", n.Line, n.Value, err)
	}
	a.Decimal = d
	return nil
}

// ParsePresets decodes preset YAML into games without registering them.
func ParsePresets(data []byte) ([]*Game, error) {
	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	out := make([]*Game, 0, len(file.Games))
	for i, p := range file.Games {
		g, err := p.Build()
		if err != nil {
			return nil, fmt.Errorf("preset %d (%s): %w", i, p.ID, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// LoadPresets reads a preset file and registers every game in it, replacing
// built-in games with the same ID. It registers nothing if any preset is
// invalid.
func LoadPresets(path string) ([]*Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	loaded, err := ParsePresets(data)
	if err != nil {
		return nil, err
	}
	for _, g := range loaded {
		if err := Register(g); err != nil {
			return nil, err
		}
	}
	return loaded, nil
}

// Build validates the preset and compiles its scripts.
func (p Preset) Build() (*Game, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if p.Kind == "" {
		p.Kind = KindChance
	}
	if p.Name == "" {
		p.Name = p.ID
	}

	entries := make([]prize.Entry, len(p.Entries))
	for i, e := range p.Entries {
		entries[i] = prize.Entry{
			ID:       e.ID,
			Weight:   e.Weight,
			Value:    e.Value.Decimal,
			PerStake: e.PerStake,
			Kind:     e.Kind,
			Metadata: e.Metadata,
		}
	}
	var opts []prize.Option
	if p.Remainder != nil {
		id := p.Remainder.ID
		if id == "" {
			id = "remainder"
		}
		opts = append(opts, prize.WithRemainder(p.Remainder.Total, prize.Entry{ID: id}))
	}
	table, err := prize.NewTable(entries, opts...)
	if err != nil {
		return nil, err
	}

	cfg := session.Config{
		Rounds:      p.Rounds,
		Ceiling:     p.Ceiling,
		StreakBonus: p.StreakBonus,
		HoldPayouts: p.HoldPayouts,
		Deplete:     p.Deplete,
		BustOn:      p.BustOn,
		FinishOn:    p.FinishOn,
	}
	if cfg.Duration, err = parseDuration("duration", p.Duration); err != nil {
		return nil, err
	}
	if cfg.DecayWindow, err = parseDuration("decay_window", p.DecayWindow); err != nil {
		return nil, err
	}
	for _, id := range append(append([]string{}, p.BustOn...), p.FinishOn...) {
		if _, _, ok := table.Lookup(id); !ok {
			return nil, fmt.Errorf("terminal entry %q not in table", id)
		}
	}

	g := &Game{Spec: p.Spec, Table: table}

	switch {
	case p.CurveScript != "":
		c, err := scripting.CompileCurve(p.CurveScript)
		if err != nil {
			return nil, err
		}
		cfg.Curve = c
		g.CurveScript = p.CurveScript
	case p.Curve != nil && len(p.Curve.Steps) > 0:
		cfg.Curve = session.Steps(p.Curve.Steps)
	case p.Curve != nil:
		cfg.Curve = session.Linear{Base: p.Curve.Base, Step: p.Curve.Step}
	default:
		cfg.Curve = flat
	}

	if p.BonusScript != "" {
		bonus, err := scripting.CompileBonus(p.BonusScript)
		if err != nil {
			return nil, err
		}
		cfg.Bonus = bonus
		g.BonusScript = p.BonusScript
	}

	if p.Ladder != nil {
		l := &resolver.Ladder{LowerIsBetter: p.Ladder.LowerIsBetter, Fallback: p.Ladder.Fallback}
		for _, r := range p.Ladder.Rungs {
			l.Rungs = append(l.Rungs, resolver.Rung{ID: r.ID, Threshold: r.Threshold, MinCount: r.MinCount})
		}
		cfg.Ladder = l
	}

	if p.Daily != "" {
		loc, err := time.LoadLocation(p.Daily)
		if err != nil {
			return nil, fmt.Errorf("daily: %w", err)
		}
		cfg.Gate = gate.NewCalendar(loc)
	}

	// Surface config errors at load time.
	if _, err := session.NewTracker(table, nil, cfg); err != nil {
		return nil, err
	}
	g.Config = cfg
	return g, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
