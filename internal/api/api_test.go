package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"

	"github.com/MJE43/coin-reward-engine/internal/engine"
	"github.com/MJE43/coin-reward-engine/internal/seedvault"
	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/MJE43/coin-reward-engine/internal/simulate"
	"github.com/MJE43/coin-reward-engine/internal/store"
)

func newTestServer(t testing.TB, opts Options) (*Server, http.Handler) {
	t.Helper()
	db, err := store.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	keyring.MockInit()
	vault := seedvault.New("coin-reward-engine-test", filepath.Join(t.TempDir(), "fallback_secrets.json"))

	server := NewServer(db, vault, zerolog.Nop(), opts)
	return server, server.Routes()
}

func do(t testing.TB, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// serve is do without testing.T, for use from goroutines.
func serve(h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewReader(data)))
	return w, nil
}

func decode[T any](t testing.TB, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func expectStatus(t testing.TB, w *httptest.ResponseRecorder, status int, errType string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if errType != "" && w.Header().Get("X-Error-Type") != errType {
		t.Errorf("Expected error type %s, got %s", errType, w.Header().Get("X-Error-Type"))
	}
}

func startSession(t testing.TB, h http.Handler, account, game string) SessionResponse {
	t.Helper()
	w := do(t, h, "POST", "/api/v1/sessions", StartSessionRequest{Account: account, Game: game})
	expectStatus(t, w, http.StatusCreated, "")
	return decode[SessionResponse](t, w)
}

func TestHealthEndpoint(t *testing.T) {
	_, h := newTestServer(t, Options{})

	w := do(t, h, "GET", "/health", nil)
	expectStatus(t, w, http.StatusOK, "")

	resp := decode[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s: %+v", resp.Status, resp.Checks)
	}
	for _, name := range []string{"games", "database", "seedvault", "simulator"} {
		if _, ok := resp.Checks[name]; !ok {
			t.Errorf("Expected %s check in response", name)
		}
	}

	expectStatus(t, do(t, h, "GET", "/health/ready", nil), http.StatusOK, "")
	expectStatus(t, do(t, h, "GET", "/health/live", nil), http.StatusOK, "")

	w = do(t, h, "GET", "/version", nil)
	expectStatus(t, w, http.StatusOK, "")
	if v := decode[VersionInfo](t, w); v.EngineVersion != EngineVersion {
		t.Errorf("Expected version %s, got %s", EngineVersion, v.EngineVersion)
	}
}

func TestGamesEndpoint(t *testing.T) {
	_, h := newTestServer(t, Options{})

	w := do(t, h, "GET", "/api/v1/games", nil)
	expectStatus(t, w, http.StatusOK, "")
	list := decode[GamesResponse](t, w)
	if len(list.Games) == 0 {
		t.Error("Expected at least one game in response")
	}
	if list.EngineVersion == "" {
		t.Error("Expected engine version in response")
	}

	w = do(t, h, "GET", "/api/v1/games/lucky-draw", nil)
	expectStatus(t, w, http.StatusOK, "")
	game := decode[GameResponse](t, w)
	if game.Game.ID != "lucky-draw" {
		t.Errorf("Expected lucky-draw, got %s", game.Game.ID)
	}

	expectStatus(t, do(t, h, "GET", "/api/v1/games/nope", nil), http.StatusNotFound, ErrTypeGameNotFound)
}

func TestStartSessionRequiresFunds(t *testing.T) {
	_, h := newTestServer(t, Options{})

	w := do(t, h, "POST", "/api/v1/sessions", StartSessionRequest{Account: "alice", Game: "lucky-draw"})
	expectStatus(t, w, http.StatusPaymentRequired, ErrTypeInsufficientFunds)

	w = do(t, h, "POST", "/api/v1/accounts/alice/grant", GrantRequest{Amount: 100})
	expectStatus(t, w, http.StatusOK, "")
	if bal := decode[BalanceResponse](t, w); bal.Balance != 100 {
		t.Errorf("Expected balance 100, got %d", bal.Balance)
	}

	started := startSession(t, h, "alice", "lucky-draw")
	if started.Balance != 75 {
		t.Errorf("Expected balance 75 after stake, got %d", started.Balance)
	}
	if started.Session.Status != string(session.StatusActive) {
		t.Errorf("Expected active session, got %s", started.Session.Status)
	}
}

func TestWelcomeBonusGrantedOnce(t *testing.T) {
	_, h := newTestServer(t, Options{WelcomeBonus: 500})

	for i := 0; i < 2; i++ {
		w := do(t, h, "GET", "/api/v1/accounts/bob/balance", nil)
		expectStatus(t, w, http.StatusOK, "")
		bal := decode[BalanceResponse](t, w)
		if bal.Balance != 500 {
			t.Errorf("Expected balance 500 on call %d, got %d", i+1, bal.Balance)
		}
		if len(bal.Commitment.ServerSeedHash) != 64 {
			t.Errorf("Expected server seed hash, got %q", bal.Commitment.ServerSeedHash)
		}
	}
}

func TestResolveVerifyRoundTrip(t *testing.T) {
	_, h := newTestServer(t, Options{WelcomeBonus: 1000})

	started := startSession(t, h, "carol", "lucky-draw")
	id := started.Session.ID

	w := do(t, h, "POST", "/api/v1/sessions/"+id+"/resolve", ResolveRequest{})
	expectStatus(t, w, http.StatusOK, "")
	round := decode[RoundResponse](t, w)
	if round.Nonce == nil || *round.Nonce != 0 {
		t.Fatalf("Expected nonce 0, got %v", round.Nonce)
	}
	if !round.Outcome.Complete || round.Outcome.Reason != session.EndRounds {
		t.Errorf("Expected single-round game to complete, got %+v", round.Outcome)
	}

	// Completed sessions refuse further play.
	w = do(t, h, "POST", "/api/v1/sessions/"+id+"/resolve", ResolveRequest{})
	expectStatus(t, w, http.StatusConflict, ErrTypeInvalidTransition)

	w = do(t, h, "GET", "/api/v1/sessions/"+id+"/summary", nil)
	expectStatus(t, w, http.StatusOK, "")
	sum := decode[SummaryResponse](t, w)
	if sum.Summary.Net != sum.Balance-1000 {
		t.Errorf("Expected net %d to match balance change, got %d", sum.Balance-1000, sum.Summary.Net)
	}
	if sum.Summary.Reason != session.EndRounds {
		t.Errorf("Expected reason %s, got %s", session.EndRounds, sum.Summary.Reason)
	}

	w = do(t, h, "GET", "/api/v1/sessions/"+id+"/rounds", nil)
	expectStatus(t, w, http.StatusOK, "")
	rounds := decode[store.RoundsPage](t, w)
	if rounds.TotalCount != 1 || rounds.Rounds[0].EntryID != round.Outcome.Result.Selected.ID {
		t.Errorf("Expected one stored round for %s, got %+v", round.Outcome.Result.Selected.ID, rounds)
	}

	w = do(t, h, "POST", "/api/v1/accounts/carol/rotate", RotateRequest{ClientSeed: "fresh"})
	expectStatus(t, w, http.StatusOK, "")
	rot := decode[RotateResponse](t, w)
	if rot.Revealed.ServerSeedHash != started.Commitment.ServerSeedHash {
		t.Errorf("Expected revealed hash %s, got %s", started.Commitment.ServerSeedHash, rot.Revealed.ServerSeedHash)
	}
	if rot.Revealed.NextNonce != 1 {
		t.Errorf("Expected next nonce 1, got %d", rot.Revealed.NextNonce)
	}
	if rot.Next.ClientSeed != "fresh" || rot.Next.Nonce != 0 {
		t.Errorf("Expected fresh commitment at nonce 0, got %+v", rot.Next)
	}

	seeds := engine.Seeds{Server: rot.Revealed.ServerSeed, Client: rot.Revealed.ClientSeed}
	w = do(t, h, "POST", "/api/v1/verify", VerifyRequest{Game: "lucky-draw", Seeds: seeds, Nonce: 0})
	expectStatus(t, w, http.StatusOK, "")
	ver := decode[VerifyResponse](t, w)
	if ver.Result.Selected.ID != round.Outcome.Result.Selected.ID {
		t.Errorf("Expected verify to select %s, got %s", round.Outcome.Result.Selected.ID, ver.Result.Selected.ID)
	}
	if ver.Result.Draw != engine.DrawAt(seeds, 0) {
		t.Errorf("Expected draw %v, got %v", engine.DrawAt(seeds, 0), ver.Result.Draw)
	}
	if ver.ServerSeedHash != started.Commitment.ServerSeedHash {
		t.Errorf("Expected hash %s, got %s", started.Commitment.ServerSeedHash, ver.ServerSeedHash)
	}

	w = do(t, h, "GET", "/api/v1/sessions/"+id+"/rounds.csv", nil)
	expectStatus(t, w, http.StatusOK, "")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header and one row, got %q", w.Body.String())
	}
	if !strings.HasPrefix(lines[1], "1,0,") || !strings.Contains(lines[1], round.Outcome.Result.Selected.ID) {
		t.Errorf("Expected round 1 at nonce 0 for %s, got %q", round.Outcome.Result.Selected.ID, lines[1])
	}
}

// failingRounds is a database whose round inserts always fail.
type failingRounds struct {
	store.DB
}

func (failingRounds) SaveRound(*store.Round) error {
	return errors.New("disk full")
}

func TestUnsavedRoundLogsWalletDelta(t *testing.T) {
	db, err := store.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	keyring.MockInit()
	vault := seedvault.New("coin-reward-engine-test", filepath.Join(t.TempDir(), "fallback_secrets.json"))

	var logs bytes.Buffer
	h := NewServer(failingRounds{db}, vault, zerolog.New(&logs), Options{WelcomeBonus: 1000}).Routes()

	started := startSession(t, h, "erin", "lucky-draw")
	w := do(t, h, "POST", "/api/v1/sessions/"+started.Session.ID+"/resolve", ResolveRequest{})
	expectStatus(t, w, http.StatusInternalServerError, "")

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var m map[string]any
		if json.Unmarshal([]byte(line), &m) == nil && m["message"] == "round applied to wallet but not saved" {
			entry = m
		}
	}
	if entry == nil {
		t.Fatalf("Expected an unsaved-round log entry, got %s", logs.String())
	}
	if entry["level"] != "error" {
		t.Errorf("Expected error level, got %v", entry["level"])
	}
	if entry["session_id"] != started.Session.ID || entry["account"] != "erin" {
		t.Errorf("Expected session and account fields, got %v", entry)
	}
	if _, ok := entry["delta"]; !ok {
		t.Errorf("Expected the applied delta to be logged, got %v", entry)
	}
}

func TestRotateRacingStartKeepsCommitment(t *testing.T) {
	_, h := newTestServer(t, Options{WelcomeBonus: 1000})

	for i := 0; i < 25; i++ {
		var (
			wg               sync.WaitGroup
			start, rotate    *httptest.ResponseRecorder
			startErr, rotErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			start, startErr = serve(h, "POST", "/api/v1/sessions", StartSessionRequest{Account: "erin", Game: "lucky-draw"})
		}()
		go func() {
			defer wg.Done()
			rotate, rotErr = serve(h, "POST", "/api/v1/accounts/erin/rotate", RotateRequest{})
		}()
		wg.Wait()
		if startErr != nil || rotErr != nil {
			t.Fatalf("Request failed: %v %v", startErr, rotErr)
		}
		expectStatus(t, start, http.StatusCreated, "")
		if rotate.Code != http.StatusOK && rotate.Code != http.StatusConflict {
			t.Fatalf("Expected rotate to succeed or be refused, got %d: %s", rotate.Code, rotate.Body.String())
		}
		started := decode[SessionResponse](t, start)

		w := do(t, h, "POST", "/api/v1/sessions/"+started.Session.ID+"/resolve", ResolveRequest{})
		expectStatus(t, w, http.StatusOK, "")
		round := decode[RoundResponse](t, w)

		w = do(t, h, "POST", "/api/v1/accounts/erin/rotate", RotateRequest{})
		expectStatus(t, w, http.StatusOK, "")
		rot := decode[RotateResponse](t, w)

		if rot.Revealed.ServerSeedHash != started.Session.ServerSeedHash {
			t.Fatalf("Iteration %d: expected revealed hash %s, got %s", i, started.Session.ServerSeedHash, rot.Revealed.ServerSeedHash)
		}
		seeds := engine.Seeds{Server: rot.Revealed.ServerSeed, Client: rot.Revealed.ClientSeed}
		if got := engine.DrawAt(seeds, *round.Nonce); got != round.Outcome.Result.Draw {
			t.Fatalf("Iteration %d: expected draw %v from revealed seed, got %v", i, round.Outcome.Result.Draw, got)
		}
	}
}

func TestVerifyReplaysSimulatedSession(t *testing.T) {
	_, h := newTestServer(t, Options{})
	seeds := engine.Seeds{Server: "audit-server", Client: "audit-client"}

	wallet := store.NewMemoryWallet()
	if err := store.Grant(wallet, "auditor", 40); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	trace, err := simulate.TraceSession(simulate.Request{Game: "treasure-hunt", Seeds: seeds, NonceStart: 3}, "auditor", wallet, 40)
	if err != nil {
		t.Fatalf("TraceSession failed: %v", err)
	}

	w := do(t, h, "POST", "/api/v1/verify", VerifyRequest{Game: "treasure-hunt", Seeds: seeds, Nonce: 3, Count: len(trace.Outcomes)})
	expectStatus(t, w, http.StatusOK, "")
	ver := decode[VerifyResponse](t, w)
	if len(ver.Floats) != len(trace.Outcomes) {
		t.Fatalf("Expected %d floats, got %d", len(trace.Outcomes), len(ver.Floats))
	}
	for i, out := range trace.Outcomes {
		if ver.Floats[i] != out.Result.Draw {
			t.Errorf("Round %d: expected draw %v, got %v", i+1, out.Result.Draw, ver.Floats[i])
		}
	}
	if ver.Result.Selected.ID != trace.Outcomes[0].Result.Selected.ID {
		t.Errorf("Expected first round %s, got %s", trace.Outcomes[0].Result.Selected.ID, ver.Result.Selected.ID)
	}
}

func TestHeldPayoutsForfeitOnBust(t *testing.T) {
	_, h := newTestServer(t, Options{WelcomeBonus: 200})

	started := startSession(t, h, "dave", "scratch-card")
	id := started.Session.ID

	expectStatus(t, do(t, h, "POST", "/api/v1/accounts/dave/rotate", RotateRequest{}), http.StatusConflict, ErrTypeSessionBusy)
	expectStatus(t, do(t, h, "GET", "/api/v1/sessions/"+id+"/summary", nil), http.StatusConflict, ErrTypeInvalidTransition)

	w := do(t, h, "POST", "/api/v1/sessions/"+id+"/outcome", OutcomeRequest{EntryID: "p100"})
	expectStatus(t, w, http.StatusOK, "")
	round := decode[RoundResponse](t, w)
	if round.Outcome.Held != 100 || round.Outcome.Credited != 0 {
		t.Errorf("Expected 100 held and nothing credited, got %+v", round.Outcome)
	}
	if round.Balance != 150 {
		t.Errorf("Expected balance 150 while winnings are held, got %d", round.Balance)
	}

	expectStatus(t, do(t, h, "POST", "/api/v1/sessions/"+id+"/outcome", OutcomeRequest{EntryID: "nope"}),
		http.StatusBadRequest, ErrTypeUnknownEntry)
	expectStatus(t, do(t, h, "POST", "/api/v1/sessions/"+id+"/outcome", OutcomeRequest{}),
		http.StatusBadRequest, ErrTypeValidation)

	w = do(t, h, "POST", "/api/v1/sessions/"+id+"/end", EndRequest{Reason: session.EndBust})
	expectStatus(t, w, http.StatusOK, "")
	end := decode[SummaryResponse](t, w)
	if end.Summary.Forfeited != 100 || end.Summary.Payout != 0 {
		t.Errorf("Expected 100 forfeited and no payout, got %+v", end.Summary)
	}

	w = do(t, h, "GET", "/api/v1/sessions/"+id, nil)
	expectStatus(t, w, http.StatusOK, "")
	got := decode[SessionResponse](t, w)
	if got.Session.Status != string(session.StatusComplete) || got.Session.Forfeited != 100 {
		t.Errorf("Expected stored bust with 100 forfeited, got %+v", got.Session)
	}
	if got.State != nil {
		t.Error("Expected no live state for a completed session")
	}

	expectStatus(t, do(t, h, "POST", "/api/v1/accounts/dave/rotate", RotateRequest{}), http.StatusOK, "")
}

func TestTickExhaustsTimeBox(t *testing.T) {
	_, h := newTestServer(t, Options{})

	started := startSession(t, h, "erin", "whack-a-mole")
	id := started.Session.ID

	w := do(t, h, "POST", "/api/v1/sessions/"+id+"/tick", TickRequest{ElapsedMs: 10_000})
	expectStatus(t, w, http.StatusOK, "")
	if st := decode[StateResponse](t, w); st.Status != session.StatusActive {
		t.Errorf("Expected active after 10s, got %s", st.Status)
	}

	w = do(t, h, "POST", "/api/v1/sessions/"+id+"/tick", TickRequest{ElapsedMs: 20_000})
	expectStatus(t, w, http.StatusOK, "")
	if st := decode[StateResponse](t, w); st.Status != session.StatusComplete {
		t.Errorf("Expected complete after 30s, got %s", st.Status)
	}

	w = do(t, h, "GET", "/api/v1/sessions/"+id+"/summary", nil)
	expectStatus(t, w, http.StatusOK, "")
	if sum := decode[SummaryResponse](t, w); sum.Summary.Reason != session.EndTime {
		t.Errorf("Expected reason %s, got %s", session.EndTime, sum.Summary.Reason)
	}

	expectStatus(t, do(t, h, "POST", "/api/v1/sessions/"+id+"/tick", TickRequest{ElapsedMs: -1}),
		http.StatusBadRequest, ErrTypeValidation)
}

func TestDailyGate(t *testing.T) {
	_, h := newTestServer(t, Options{})

	started := startSession(t, h, "frank", "time-capsule")
	w := do(t, h, "POST", "/api/v1/sessions/"+started.Session.ID+"/resolve", ResolveRequest{})
	expectStatus(t, w, http.StatusOK, "")

	w = do(t, h, "POST", "/api/v1/sessions", StartSessionRequest{Account: "frank", Game: "time-capsule"})
	expectStatus(t, w, http.StatusTooManyRequests, ErrTypeGateClosed)

	// The gate is per account.
	startSession(t, h, "grace", "time-capsule")
}

func TestListSessions(t *testing.T) {
	_, h := newTestServer(t, Options{WelcomeBonus: 1000})

	startSession(t, h, "heidi", "lucky-draw")
	startSession(t, h, "heidi", "predict-win")
	startSession(t, h, "ivan", "lucky-draw")

	w := do(t, h, "GET", "/api/v1/sessions?account=heidi", nil)
	expectStatus(t, w, http.StatusOK, "")
	if list := decode[store.SessionsList](t, w); list.TotalCount != 2 {
		t.Errorf("Expected 2 sessions for heidi, got %d", list.TotalCount)
	}

	expectStatus(t, do(t, h, "GET", "/api/v1/sessions/missing", nil), http.StatusNotFound, ErrTypeSessionNotFound)
}

func TestSimulateEndpoint(t *testing.T) {
	_, h := newTestServer(t, Options{SimWorkers: 2})

	req := SimulateRequest{
		Game:     "lucky-draw",
		Seeds:    engine.Seeds{Server: "sim_server", Client: "sim_client"},
		Sessions: 500,
	}
	w := do(t, h, "POST", "/api/v1/simulate", req)
	expectStatus(t, w, http.StatusOK, "")
	resp := decode[SimulateResponse](t, w)
	if resp.Result == nil || resp.Result.Summary.Sessions != 500 {
		t.Fatalf("Expected 500 sessions simulated, got %+v", resp.Result)
	}
	if len(resp.Result.Entries) != 7 {
		t.Errorf("Expected 7 entry stats, got %d", len(resp.Result.Entries))
	}

	req.Game = "nope"
	expectStatus(t, do(t, h, "POST", "/api/v1/simulate", req), http.StatusNotFound, ErrTypeGameNotFound)
}

func TestRequestValidation(t *testing.T) {
	_, h := newTestServer(t, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"start without account", "POST", "/api/v1/sessions", StartSessionRequest{Game: "lucky-draw"}, http.StatusBadRequest},
		{"start unknown game", "POST", "/api/v1/sessions", StartSessionRequest{Account: "a", Game: "nope"}, http.StatusNotFound},
		{"start wrong stake", "POST", "/api/v1/sessions", map[string]any{"account": "a", "game": "lucky-draw", "stake": 30}, http.StatusBadRequest},
		{"grant zero", "POST", "/api/v1/accounts/a/grant", GrantRequest{}, http.StatusBadRequest},
		{"verify without seeds", "POST", "/api/v1/verify", VerifyRequest{Game: "lucky-draw"}, http.StatusBadRequest},
		{"verify negative stake", "POST", "/api/v1/verify", map[string]any{"game": "shake-to-win", "seeds": engine.Seeds{Server: "s", Client: "c"}, "stake": -10}, http.StatusBadRequest},
		{"verify too many floats", "POST", "/api/v1/verify", VerifyRequest{Game: "lucky-draw", Seeds: engine.Seeds{Server: "s", Client: "c"}, Count: 5000}, http.StatusBadRequest},
		{"simulate zero sessions", "POST", "/api/v1/simulate", SimulateRequest{Game: "lucky-draw", Seeds: engine.Seeds{Server: "s"}}, http.StatusBadRequest},
		{"end bad reason", "POST", "/api/v1/sessions/x/end", EndRequest{Reason: "later"}, http.StatusBadRequest},
		{"resolve unknown session", "POST", "/api/v1/sessions/x/resolve", ResolveRequest{}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest("POST", "/api/v1/verify", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusBadRequest, ErrTypeValidation)
}

func TestStartAndShutdown(t *testing.T) {
	server, _ := newTestServer(t, Options{RequestTimeout: time.Second})

	if err := server.Start("127.0.0.1:0", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
