package simulate

import "github.com/MJE43/coin-reward-engine/internal/session"

// Trace is one session played round by round.
type Trace struct {
	Nonce    uint64            `json:"nonce"`
	Outcomes []session.Outcome `json:"outcomes"`
	Summary  session.Summary   `json:"summary"`
}

// TraceSession plays the session at req.NonceStart against wallet, which
// must hold at least the stake for account. It draws exactly what Run draws
// for that nonce.
func TraceSession(req Request, account string, wallet session.Wallet, balance int64) (*Trace, error) {
	g, cfg, err := prepare(&req)
	if err != nil {
		return nil, err
	}
	tr, err := session.NewTracker(g.Table, wallet, cfg, session.WithGame(g.ID), session.WithAccount(account))
	if err != nil {
		return nil, err
	}

	trace := &Trace{Nonce: req.NonceStart}
	sum, err := playSession(tr, req.source(req.NonceStart), req, balance, func(out session.Outcome) {
		trace.Outcomes = append(trace.Outcomes, out)
	})
	if err != nil {
		return nil, err
	}
	trace.Summary = sum
	return trace, nil
}
