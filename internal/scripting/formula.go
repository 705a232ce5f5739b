package scripting

import (
	"fmt"
	"math"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"

	"github.com/MJE43/coin-reward-engine/internal/session"
)

// Formula is a compiled script whose completion value is a number. It can
// be a bare expression ("score * 5") or several statements ending in one.
type Formula struct {
	name   string
	source string
	prog   *goja.Program
	vm     *VM
}

// Compile parses source into a formula bound to its own VM.
func Compile(name, source string) (*Formula, error) {
	prog, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &Formula{name: name, source: source, prog: prog, vm: NewVM(name)}, nil
}

// Source returns the script text.
func (f *Formula) Source() string { return f.source }

// Eval runs the formula with globals and returns its numeric result.
func (f *Formula) Eval(globals map[string]any) (float64, error) {
	v, err := f.vm.Run(f.prog, globals)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.name, err)
	}
	out, err := toFiniteFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.name, err)
	}
	return out, nil
}

// CompileBonus compiles an end-of-session bonus formula. The script sees
// elapsed, elapsed_ms, moves, score, streak, max_streak, rounds, payout,
// reason, finished, signal_mean and signal_peak; its result is floored to
// whole coins.
//
//	100 + Math.max(0, 120 - elapsed) + Math.max(0, 50 - moves)
func CompileBonus(source string) (session.BonusFunc, error) {
	f, err := Compile("bonus", source)
	if err != nil {
		return nil, err
	}
	// Dry run so reference errors surface at load time, not at the end of
	// someone's session.
	if _, err := f.Eval(bonusGlobals(session.BonusInput{Reason: session.EndFinished})); err != nil {
		return nil, err
	}
	return func(in session.BonusInput) (int64, error) {
		v, err := f.Eval(bonusGlobals(in))
		if err != nil {
			return 0, err
		}
		return int64(math.Floor(v)), nil
	}, nil
}

// Curve is a scripted streak multiplier. The script sees streak.
type Curve struct {
	f *Formula
}

// CompileCurve compiles a multiplier curve such as "1 + streak * 0.5".
func CompileCurve(source string) (*Curve, error) {
	f, err := Compile("curve", source)
	if err != nil {
		return nil, err
	}
	if _, err := f.Eval(curveGlobals(0)); err != nil {
		return nil, err
	}
	return &Curve{f: f}, nil
}

// Multiplier evaluates the curve. A failing evaluation is logged as a
// warning and yields 1, the tracker's floor.
func (c *Curve) Multiplier(streak int) float64 {
	v, err := c.f.Eval(curveGlobals(streak))
	if err != nil {
		log.Warn().Err(err).Str("script", c.f.name).Int("streak", streak).Msg("curve_eval_failed")
		return 1
	}
	return v
}
