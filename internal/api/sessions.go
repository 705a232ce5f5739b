package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/MJE43/coin-reward-engine/internal/seedvault"
	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/MJE43/coin-reward-engine/internal/store"
)

// liveSession is an in-flight session. mu serialises every operation on the
// tracker and its record.
type liveSession struct {
	mu      sync.Mutex
	tracker *session.Tracker
	record  *store.Session
}

// registry holds the sessions this process is running. Completed sessions
// are dropped; their totals live in the store.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*liveSession)}
}

func (reg *registry) get(id string) (*liveSession, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ls, ok := reg.sessions[id]
	return ls, ok
}

func (reg *registry) put(ls *liveSession) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.sessions[ls.record.ID] = ls
}

func (reg *registry) remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.sessions, id)
}

// hasAccount reports whether account has a session in flight.
func (reg *registry) hasAccount(account string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, ls := range reg.sessions {
		if ls.record.Account == account {
			return true
		}
	}
	return false
}

func (reg *registry) count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.sessions)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateStartSessionRequest(&req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	g, ok := games.GetGame(req.Game)
	if !ok {
		s.errorHandler.HandleTyped(w, r, http.StatusNotFound, ErrTypeGameNotFound, "game '"+req.Game+"' not found")
		return
	}
	stake := g.Stake
	if req.Stake != nil {
		stake = *req.Stake
	}
	if err := g.ValidateStake(stake); err != nil {
		s.fail(w, r, err, map[string]interface{}{"game": g.ID, "stake": stake})
		return
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if err := s.welcome(req.Account); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	commit, err := s.vault.Active(req.Account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}

	opts := []session.Option{session.WithAccount(req.Account)}
	if g.Config.Gate != nil {
		last, err := s.db.LastGatedStart(req.Account, g.ID)
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		opts = append(opts, session.WithLastGatedStart(last))
	}
	tr, err := g.NewTracker(s.db, opts...)
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"game": g.ID})
		return
	}
	balance, err := s.db.Balance(req.Account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	st, err := tr.Start(stake, balance)
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"game": g.ID, "stake": stake, "balance": balance})
		return
	}

	rec := &store.Session{
		ID:             st.SessionID,
		Account:        req.Account,
		Game:           g.ID,
		Stake:          stake,
		ServerSeedHash: commit.ServerSeedHash,
		ClientSeed:     commit.ClientSeed,
		NonceStart:     commit.Nonce,
		NonceEnd:       commit.Nonce,
		EngineVersion:  EngineVersion,
		CreatedAt:      time.Now().UTC(),
	}
	rec.ApplyState(st)
	if err := s.db.SaveSession(rec); err != nil {
		s.logger.Error().Err(err).Str("session_id", rec.ID).Str("account", rec.Account).Int64("stake", stake).
			Msg("stake taken but session not saved")
		s.fail(w, r, err, nil)
		return
	}
	s.live.put(&liveSession{tracker: tr, record: rec})

	s.logger.Info().
		Str("session_id", rec.ID).
		Str("account", rec.Account).
		Str("game", g.ID).
		Int64("stake", stake).
		Str("server_seed_hash", commit.ServerSeedHash[:16]).
		Msg("session_started")

	s.writeJSON(w, http.StatusCreated, SessionResponse{
		Session:       *rec,
		State:         &st,
		Commitment:    commit,
		Balance:       balance - stake,
		EngineVersion: EngineVersion,
	})
}

// lookupLive finds an in-flight session, writing 404 or 409 if there is
// none.
func (s *Server) lookupLive(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	id := chi.URLParam(r, "id")
	if ls, ok := s.live.get(id); ok {
		return ls, true
	}
	rec, err := s.db.GetSession(id)
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"session_id": id})
		return nil, false
	}
	if rec.Status == string(session.StatusComplete) {
		s.fail(w, r, &session.InvalidStateTransitionError{Op: "play", From: session.StatusComplete},
			map[string]interface{}{"session_id": id})
		return nil, false
	}
	s.errorHandler.HandleTyped(w, r, http.StatusConflict, ErrTypeSessionNotLive,
		"session "+id+" is not running on this server")
	return nil, false
}

type signalOpts struct {
	signal   *resolver.Signal
	terminal bool
	bust     bool
}

func submitOptions(sig *signalOpts) []session.SubmitOption {
	var opts []session.SubmitOption
	if sig.signal != nil {
		opts = append(opts, session.WithSignal(*sig.signal))
	}
	if sig.terminal {
		opts = append(opts, session.WithTerminal())
	}
	if sig.bust {
		opts = append(opts, session.WithBust())
	}
	return opts
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ls, ok := s.lookupLive(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	// Do not burn a nonce on a session that cannot play.
	if st := ls.tracker.Status(); st != session.StatusActive {
		s.fail(w, r, &session.InvalidStateTransitionError{Op: "resolve", From: st}, nil)
		return
	}
	draw, nonce, _, err := s.vault.Draw(ls.record.Account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	out, err := ls.tracker.SubmitResolve(draw, submitOptions(&signalOpts{req.Signal, req.Terminal, req.Bust})...)
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"session_id": ls.record.ID, "nonce": nonce})
		return
	}
	ls.record.NonceEnd = nonce + 1
	s.settled(w, r, ls, out, &nonce, &draw)
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateOutcomeRequest(&req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ls, ok := s.lookupLive(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	out, err := ls.tracker.SubmitOutcome(req.EntryID, submitOptions(&signalOpts{req.Signal, req.Terminal, req.Bust})...)
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"session_id": ls.record.ID, "entry_id": req.EntryID})
		return
	}
	s.settled(w, r, ls, out, nil, nil)
}

// settled stores a round and the session's new totals, then responds.
func (s *Server) settled(w http.ResponseWriter, r *http.Request, ls *liveSession, out session.Outcome, nonce *uint64, draw *float64) {
	details, _ := json.Marshal(map[string]any{
		"streak_bonus": out.StreakBonus,
		"released":     out.Released,
		"bonus":        out.Bonus,
		"item":         out.Item,
		"reason":       out.Reason,
	})
	round := &store.Round{
		SessionID:  ls.record.ID,
		Round:      out.Round,
		Nonce:      nonce,
		Draw:       draw,
		EntryID:    out.Result.Selected.ID,
		Multiplier: out.Result.Multiplier.String(),
		Credited:   out.Credited,
		Held:       out.Held,
		Points:     out.Points,
		Delta:      out.Delta,
		Tier:       out.Tier,
		Details:    string(details),
	}
	// The wallet delta is already applied, so a failure here leaves the
	// ledger ahead of the round history.
	err := s.db.SaveRound(round)
	if err == nil {
		err = s.persist(ls)
	}
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("session_id", ls.record.ID).
			Str("account", ls.record.Account).
			Int("round", out.Round).
			Int64("delta", out.Delta).
			Msg("round applied to wallet but not saved")
		s.fail(w, r, err, map[string]interface{}{"session_id": ls.record.ID})
		return
	}
	balance, err := s.db.Balance(ls.record.Account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, RoundResponse{
		Outcome:       out,
		Nonce:         nonce,
		Balance:       balance,
		EngineVersion: EngineVersion,
	})
}

// persist writes the tracker's totals to the record, retiring the session
// once it is complete.
func (s *Server) persist(ls *liveSession) error {
	if sum, err := ls.tracker.Summary(); err == nil {
		ls.record.ApplySummary(sum, time.Now().UTC())
		s.live.remove(ls.record.ID)
		s.logger.Info().
			Str("session_id", sum.SessionID).
			Str("account", sum.Account).
			Str("game", sum.Game).
			Str("reason", string(sum.Reason)).
			Int64("payout", sum.Payout).
			Int64("net", sum.Net).
			Msg("session_completed")
	} else {
		ls.record.ApplyState(ls.tracker.State())
	}
	return s.db.UpdateSession(ls.record)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateTickRequest(&req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ls, ok := s.lookupLive(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	st, err := ls.tracker.Tick(time.Duration(req.ElapsedMs) * time.Millisecond)
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"session_id": ls.record.ID})
		return
	}
	if err := s.persist(ls); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	balance, err := s.db.Balance(ls.record.Account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{
		State:         st,
		Status:        ls.tracker.Status(),
		Balance:       balance,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req EndRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateEndRequest(&req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ls, ok := s.lookupLive(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sum, err := ls.tracker.End(req.Reason)
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"session_id": ls.record.ID})
		return
	}
	if err := s.persist(ls); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	balance, err := s.db.Balance(ls.record.Account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, SummaryResponse{Summary: sum, Balance: balance, EngineVersion: EngineVersion})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp := SessionResponse{EngineVersion: EngineVersion}

	if ls, ok := s.live.get(id); ok {
		ls.mu.Lock()
		st := ls.tracker.State()
		resp.Session = *ls.record
		resp.State = &st
		ls.mu.Unlock()
	} else {
		rec, err := s.db.GetSession(id)
		if err != nil {
			s.fail(w, r, err, map[string]interface{}{"session_id": id})
			return
		}
		resp.Session = *rec
	}
	resp.Commitment = seedvault.Commitment{
		ServerSeedHash: resp.Session.ServerSeedHash,
		ClientSeed:     resp.Session.ClientSeed,
		Nonce:          resp.Session.NonceEnd,
	}
	balance, err := s.db.Balance(resp.Session.Account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	resp.Balance = balance
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if ls, ok := s.live.get(id); ok {
		ls.mu.Lock()
		status := ls.tracker.Status()
		ls.mu.Unlock()
		s.fail(w, r, &session.InvalidStateTransitionError{Op: "summarize", From: status}, nil)
		return
	}
	rec, err := s.db.GetSession(id)
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"session_id": id})
		return
	}
	if rec.Status != string(session.StatusComplete) {
		s.fail(w, r, &session.InvalidStateTransitionError{Op: "summarize", From: session.Status(rec.Status)}, nil)
		return
	}
	balance, err := s.db.Balance(rec.Account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, SummaryResponse{Summary: rec.Summary(), Balance: balance, EngineVersion: EngineVersion})
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.db.GetSession(id); err != nil {
		s.fail(w, r, err, map[string]interface{}{"session_id": id})
		return
	}
	page, perPage := pageParams(r)
	rounds, err := s.db.GetRounds(id, page, perPage)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	list, err := s.db.ListSessions(store.SessionsQuery{
		Account: r.URL.Query().Get("account"),
		Game:    r.URL.Query().Get("game"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}
