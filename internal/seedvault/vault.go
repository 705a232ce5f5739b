// Package seedvault keeps each account's active server seed out of the
// database. Seeds live in the OS keychain, with an optional JSON file
// fallback for hosts without one. Only the SHA-256 commitment is handed out
// until the seed is rotated and revealed.
package seedvault

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/MJE43/coin-reward-engine/internal/engine"
)

const keySeedPair = "seedpair"

// ErrNoAccount is returned for an empty account ID.
var ErrNoAccount = errors.New("seedvault: account id is required")

// Commitment is what a player may see about their active seed pair.
type Commitment struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
}

// Reveal is a retired seed pair. Every draw made with it can be checked with
// engine.DrawAt for nonces below NextNonce.
type Reveal struct {
	ServerSeed     string `json:"server_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	NextNonce      uint64 `json:"next_nonce"`
}

type seedPair struct {
	Server string `json:"server"`
	Client string `json:"client"`
	Nonce  uint64 `json:"nonce"`
}

func (p seedPair) commitment() Commitment {
	return Commitment{ServerSeedHash: engine.HashServerSeed(p.Server), ClientSeed: p.Client, Nonce: p.Nonce}
}

// Vault wraps OS keychain with an optional file fallback.
type Vault struct {
	service      string
	fallbackPath string
	// mu serialises read-modify-write of a seed pair, including nonce
	// allocation.
	mu     sync.Mutex
	fileMu sync.Mutex
}

// New creates a vault. An empty service name defaults to "coin-reward-engine".
func New(serviceName, fallbackPath string) *Vault {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "coin-reward-engine"
	}
	return &Vault{service: serviceName, fallbackPath: fallbackPath}
}

// Active returns the commitment for the account's seed pair, creating one on
// first use.
func (v *Vault) Active(account string) (Commitment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.loadOrCreate(account, "")
	if err != nil {
		return Commitment{}, err
	}
	return p.commitment(), nil
}

// Reserve allocates n consecutive nonces and returns the seeds and the first
// nonce. Draws for those nonces come from engine.NewSeededSource.
func (v *Vault) Reserve(account string, n uint64) (engine.Seeds, uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.loadOrCreate(account, "")
	if err != nil {
		return engine.Seeds{}, 0, err
	}
	start := p.Nonce
	p.Nonce += n
	if err := v.save(account, p); err != nil {
		return engine.Seeds{}, 0, err
	}
	return engine.Seeds{Server: p.Server, Client: p.Client}, start, nil
}

// Draw allocates one nonce and returns its draw.
func (v *Vault) Draw(account string) (float64, uint64, Commitment, error) {
	seeds, nonce, err := v.Reserve(account, 1)
	if err != nil {
		return 0, 0, Commitment{}, err
	}
	return engine.DrawAt(seeds, nonce), nonce, Commitment{
		ServerSeedHash: engine.HashServerSeed(seeds.Server),
		ClientSeed:     seeds.Client,
		Nonce:          nonce,
	}, nil
}

// Rotate reveals the current server seed and replaces it. An empty
// clientSeed keeps the current client seed.
func (v *Vault) Rotate(account, clientSeed string) (Reveal, Commitment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	old, err := v.loadOrCreate(account, clientSeed)
	if err != nil {
		return Reveal{}, Commitment{}, err
	}
	server, err := randomSeed(32)
	if err != nil {
		return Reveal{}, Commitment{}, err
	}
	next := seedPair{Server: server, Client: old.Client}
	if clientSeed != "" {
		next.Client = clientSeed
	}
	if err := v.save(account, next); err != nil {
		return Reveal{}, Commitment{}, err
	}
	return Reveal{
		ServerSeed:     old.Server,
		ServerSeedHash: engine.HashServerSeed(old.Server),
		ClientSeed:     old.Client,
		NextNonce:      old.Nonce,
	}, next.commitment(), nil
}

// Delete removes the account's seeds from keychain and fallback.
func (v *Vault) Delete(account string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	err := keyring.Delete(v.service, v.key(account))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		_ = v.deleteFallbackAccount(account)
		return fmt.Errorf("seedvault: keyring delete failed: %w", err)
	}
	return v.deleteFallbackAccount(account)
}

func (v *Vault) key(account string) string {
	return fmt.Sprintf("%s/%s", account, keySeedPair)
}

func (v *Vault) loadOrCreate(account, clientSeed string) (seedPair, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return seedPair{}, ErrNoAccount
	}
	raw, err := v.getSecret(account)
	if err == nil {
		var p seedPair
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return seedPair{}, fmt.Errorf("seedvault: decode seeds for %s: %w", account, err)
		}
		return p, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return seedPair{}, err
	}

	server, err := randomSeed(32)
	if err != nil {
		return seedPair{}, err
	}
	if clientSeed == "" {
		if clientSeed, err = randomSeed(8); err != nil {
			return seedPair{}, err
		}
	}
	p := seedPair{Server: server, Client: clientSeed}
	if err := v.save(account, p); err != nil {
		return seedPair{}, err
	}
	return p, nil
}

func (v *Vault) save(account string, p seedPair) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return v.setSecret(account, string(raw))
}

func (v *Vault) setSecret(account, value string) error {
	if err := keyring.Set(v.service, v.key(account), value); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("seedvault: keyring set: %w", err)
	}
	return v.setFallback(account, value)
}

func (v *Vault) getSecret(account string) (string, error) {
	val, err := keyring.Get(v.service, v.key(account))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("seedvault: keyring get: %w", err)
	}

	fallback, ferr := v.getFallback(account)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", keyring.ErrNotFound
	}
	return "", ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func randomSeed(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("seedvault: generate seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type fallbackSecrets map[string]string

func (v *Vault) setFallback(account, value string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return fmt.Errorf("seedvault: keyring unavailable and no fallback path configured")
	}
	v.fileMu.Lock()
	defer v.fileMu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[account] = value
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) getFallback(account string) (string, error) {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return "", fmt.Errorf("seedvault: fallback path not configured")
	}
	v.fileMu.Lock()
	defer v.fileMu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[account]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (v *Vault) deleteFallbackAccount(account string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return nil
	}
	v.fileMu.Lock()
	defer v.fileMu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	delete(data, account)
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(v.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("seedvault: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("seedvault: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (v *Vault) writeFallbackUnlocked(data fallbackSecrets) error {
	if err := os.MkdirAll(filepath.Dir(v.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("seedvault: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("seedvault: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(v.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("seedvault: write fallback secrets: %w", err)
	}
	return nil
}
