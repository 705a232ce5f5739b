package games

import (
	"time"

	"github.com/MJE43/coin-reward-engine/internal/prize"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/MJE43/coin-reward-engine/internal/scripting"
	"github.com/MJE43/coin-reward-engine/internal/session"
)

// Skill games settle rounds with SubmitOutcome and pay most of their coins
// through the end-of-session bonus formula.

const (
	memoryMatchBonus    = "finished ? 100 + Math.max(0, 120 - Math.floor(elapsed)) + Math.max(0, 50 - moves) : 0"
	whackAMoleBonus     = "score * 5"
	tapToWinBonus       = "score * 2"
	bubblePopBonus      = "score / 10"
	triviaBonus         = "score"
	wordScrambleBonus   = "score * 10"
	reactionTesterBonus = `
		var avg = signal_mean;
		rounds == 0 ? 0 :
		avg < 200 ? 100 :
		avg < 250 ? 75 :
		avg < 300 ? 50 :
		avg < 400 ? 25 : 10`
)

func withBonus(g *Game, source string) *Game {
	bonus, err := scripting.CompileBonus(source)
	if err != nil {
		panic(err)
	}
	g.Config.Bonus = bonus
	g.BonusScript = source
	return g
}

// memoryMatch: each flip of two cards is a move; the caller ends the session
// with End(EndFinished) once all eight pairs are matched.
func memoryMatch() *Game {
	return withBonus(&Game{
		Spec: Spec{
			ID:          "memory-match",
			Name:        "Memory Match",
			Kind:        KindSkill,
			Description: "Match eight pairs; faster games with fewer moves earn more.",
		},
		Table: prize.MustTable([]prize.Entry{
			pointsEntry("match", 1, 1),
			pointsEntry("miss", 1, 0),
		}),
		Config: session.Config{Curve: flat},
	}, memoryMatchBonus)
}

func whackAMole() *Game {
	return withBonus(&Game{
		Spec: Spec{
			ID:          "whack-a-mole",
			Name:        "Whack-a-Mole",
			Kind:        KindSkill,
			Description: "Thirty seconds; five coins per mole.",
		},
		Table: prize.MustTable([]prize.Entry{
			pointsEntry("hit", 1, 1),
			pointsEntry("miss", 1, 0),
		}),
		Config: session.Config{Duration: 30 * time.Second, Curve: flat},
	}, whackAMoleBonus)
}

func tapToWin() *Game {
	return withBonus(&Game{
		Spec: Spec{
			ID:          "tap-to-win",
			Name:        "Tap to Win",
			Kind:        KindSkill,
			Description: "Fifteen seconds; two coins per tap.",
		},
		Table:  prize.MustTable([]prize.Entry{pointsEntry("tap", 1, 1)}),
		Config: session.Config{Duration: 15 * time.Second, Curve: flat},
	}, tapToWinBonus)
}

// bubblePop multiplies each bubble's points by min(combo+1, 5). The combo
// drops when two seconds pass without a pop.
func bubblePop() *Game {
	return withBonus(&Game{
		Spec: Spec{
			ID:          "bubble-pop",
			Name:        "Bubble Pop",
			Kind:        KindSkill,
			Description: "Forty-five seconds of bubbles worth 1-3 points; chain pops for up to 5x.",
		},
		Table: prize.MustTable([]prize.Entry{
			pointsEntry("bubble_1", 1, 1),
			pointsEntry("bubble_2", 1, 2),
			pointsEntry("bubble_3", 1, 3),
		}),
		Config: session.Config{
			Duration:    45 * time.Second,
			Curve:       session.Linear{Base: 1, Step: 1},
			Ceiling:     5,
			DecayWindow: 2 * time.Second,
		},
	}, bubblePopBonus)
}

// reactionTester takes five reaction times (ms) as signals and pays by their
// average.
func reactionTester() *Game {
	return withBonus(&Game{
		Spec: Spec{
			ID:          "reaction-tester",
			Name:        "Reaction Tester",
			Kind:        KindSkill,
			Description: "Five rounds; the faster your average, the bigger the reward.",
		},
		Table: prize.MustTable([]prize.Entry{coinEntry("reaction", "Reaction", 1, 0)}),
		Config: session.Config{
			Rounds: 5,
			Curve:  flat,
			Ladder: &resolver.Ladder{
				LowerIsBetter: true,
				Rungs: []resolver.Rung{
					{ID: "lightning", Threshold: resolver.Threshold(200)},
					{ID: "excellent", Threshold: resolver.Threshold(250)},
					{ID: "great", Threshold: resolver.Threshold(300)},
					{ID: "good", Threshold: resolver.Threshold(400)},
				},
				Fallback: "slow",
			},
		},
	}, reactionTesterBonus)
}

// triviaQuiz: five questions, 20 points per correct answer plus 5 per
// answer already in the streak. Points are paid as coins at the end.
func triviaQuiz() *Game {
	return withBonus(&Game{
		Spec: Spec{
			ID:          "trivia-quiz",
			Name:        "Trivia Quiz",
			Kind:        KindSkill,
			Description: "Five questions; streaks earn bonus points.",
		},
		Table: prize.MustTable([]prize.Entry{
			pointsEntry("correct", 1, 20),
			pointsEntry("wrong", 1, 0),
		}),
		Config: session.Config{Rounds: 5, Curve: flat, StreakBonus: 5},
	}, triviaBonus)
}

func wordScramble() *Game {
	return withBonus(&Game{
		Spec: Spec{
			ID:          "word-scramble",
			Name:        "Word Scramble",
			Kind:        KindSkill,
			Description: "Sixty seconds to unscramble words; 10 points each plus 2 per streak.",
		},
		Table: prize.MustTable([]prize.Entry{
			pointsEntry("solved", 1, 10),
			pointsEntry("skipped", 1, 0),
		}),
		Config: session.Config{Duration: 60 * time.Second, Curve: flat, StreakBonus: 2},
	}, wordScrambleBonus)
}

// treasureHunt is a 5x5 grid of three treasures worth 50, 100 or 150, a
// bonus cell worth 100, two traps and nineteen empty cells. Each cell is
// revealed at most once. Finds are held until the hunt ends; a trap
// forfeits them and uncovering every prize ends the hunt early.
func treasureHunt() *Game {
	trap := coinEntry("trap", "Trap", 2, 0)
	return &Game{
		Spec: Spec{
			ID:          "treasure-hunt",
			Name:        "Treasure Hunt",
			Kind:        KindChance,
			Description: "Eight reveals on a 5x5 grid. Find all four prizes to finish early; hit a trap and lose everything found.",
			Stake:       30,
		},
		Table: prize.MustTable([]prize.Entry{
			coinEntry("treasure_150", "Treasure x3", 1, 150),
			coinEntry("treasure_100", "Treasure x2", 1, 100),
			coinEntry("bonus", "Bonus", 1, 100),
			coinEntry("treasure_50", "Treasure x1", 1, 50),
			coinEntry("empty", "Empty", 19, 0),
			trap,
		}),
		Config: session.Config{
			Rounds:      8,
			Curve:       flat,
			HoldPayouts: true,
			Deplete:     true,
			BustOn:      []string{trap.ID},
		},
	}
}
