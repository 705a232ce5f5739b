package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MJE43/coin-reward-engine/internal/engine"
	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/MJE43/coin-reward-engine/internal/simulate"
	"github.com/MJE43/coin-reward-engine/internal/store"
)

// handleListGames returns every registered game's spec.
func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:         games.ListGames(),
		EngineVersion: EngineVersion,
	})
}

// handleGetGame returns one game with its prize table odds.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, ok := games.GetGame(id)
	if !ok {
		s.errorHandler.HandleTyped(w, r, http.StatusNotFound, ErrTypeGameNotFound, "game '"+id+"' not found")
		return
	}
	s.writeJSON(w, http.StatusOK, GameResponse{Game: g.Info(), EngineVersion: EngineVersion})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "id")
	if err := validateAccount(account); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if err := s.welcome(account); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	balance, err := s.db.Balance(account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	commit, err := s.vault.Active(account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{
		Account:       account,
		Balance:       balance,
		Commitment:    commit,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "id")
	var req GrantRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := validateAccount(account); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if err := ValidateGrantRequest(&req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if err := store.Grant(s.db, account, req.Amount); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	balance, err := s.db.Balance(account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	commit, err := s.vault.Active(account)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}

	s.logger.Info().Str("account", account).Int64("amount", req.Amount).Int64("balance", balance).Msg("grant_applied")
	s.writeJSON(w, http.StatusOK, BalanceResponse{
		Account:       account,
		Balance:       balance,
		Commitment:    commit,
		EngineVersion: EngineVersion,
	})
}

// handleRotate reveals the account's server seed. Accounts with a session
// in flight keep their seed until it completes.
func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "id")
	var req RotateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := validateAccount(account); err != nil {
		s.fail(w, r, err, nil)
		return
	}

	// Held across the check and the rotation so a start cannot commit to
	// the seed being revealed.
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.live.hasAccount(account) {
		s.errorHandler.HandleTyped(w, r, http.StatusConflict, ErrTypeSessionBusy,
			"account has a session in progress; finish it before rotating seeds")
		return
	}

	revealed, next, err := s.vault.Rotate(account, req.ClientSeed)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}

	// Security logging - log hashes but never the raw seed
	s.logger.Info().
		Str("account", account).
		Str("revealed_hash", revealed.ServerSeedHash[:16]).
		Str("next_hash", next.ServerSeedHash[:16]).
		Uint64("nonces_used", revealed.NextNonce).
		Msg("seed_rotated")

	s.writeJSON(w, http.StatusOK, RotateResponse{Revealed: revealed, Next: next, EngineVersion: EngineVersion})
}

// handleVerify replays the draw for one nonce and resolves it against the
// game's table at multiplier 1.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateVerifyRequest(&req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	g, _ := games.GetGame(req.Game)
	stake := g.Stake
	if req.Stake != nil {
		stake = *req.Stake
	}
	if err := g.ValidateStake(stake); err != nil {
		s.fail(w, r, err, map[string]interface{}{"game": g.ID, "stake": stake})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	floats := engine.Floats(req.Seeds.Server, req.Seeds.Client, req.Nonce, 0, req.Count)
	result, err := resolver.ResolveScaled(g.Table, floats[0], stake, decimal.NewFromInt(1))
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"game": req.Game, "nonce": req.Nonce})
		return
	}

	s.logger.Debug().
		Str("game", req.Game).
		Str("server_hash", hashSeed(req.Seeds.Server)).
		Str("client_hash", hashSeed(req.Seeds.Client)).
		Uint64("nonce", req.Nonce).
		Str("entry", result.Selected.ID).
		Msg("verify_completed")

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Nonce:          req.Nonce,
		ServerSeedHash: engine.HashServerSeed(req.Seeds.Server),
		Result:         result,
		Floats:         floats,
		EngineVersion:  EngineVersion,
		Echo:           req,
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateSimulateRequest(&req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if req.TimeoutMs == 0 {
		req.TimeoutMs = int(s.opts.RequestTimeout.Milliseconds())
	}

	s.logger.Info().
		Str("game", req.Game).
		Str("server_hash", hashSeed(req.Seeds.Server)).
		Str("client_hash", hashSeed(req.Seeds.Client)).
		Int("sessions", req.Sessions).
		Int("timeout_ms", req.TimeoutMs).
		Msg("simulate_request")

	result, err := s.sim.Run(r.Context(), simulate.Request{
		Game:       req.Game,
		Seeds:      req.Seeds,
		NonceStart: req.NonceStart,
		Sessions:   req.Sessions,
		Stake:      req.Stake,
		MaxRounds:  req.MaxRounds,
		RoundTime:  time.Duration(req.RoundTimeMs) * time.Millisecond,
		TimeoutMs:  req.TimeoutMs,
	})
	if err != nil {
		s.fail(w, r, err, map[string]interface{}{"game": req.Game})
		return
	}
	s.writeJSON(w, http.StatusOK, SimulateResponse{Result: result, EngineVersion: EngineVersion})
}
