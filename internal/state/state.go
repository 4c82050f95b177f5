package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"onchainuno/internal/commit"
)

const (
	// MaxPlayers bounds the roster of a single session.
	MaxPlayers = 10
	// MinPlayersToStart is the smallest roster allowed to begin play.
	MinPlayersToStart = 2
)

type State struct {
	Height int64 `json:"height"`

	NextGameID uint64 `json:"nextGameId"`

	// ActiveGames holds the ids of sessions still open for play, in
	// insertion order. end_game removes the first matching entry only.
	ActiveGames []uint64 `json:"activeGames"`

	Games   map[uint64]*Session `json:"games"`
	Actions map[uint64][]Action `json:"actions,omitempty"`

	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // account -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64), for replay protection
}

func NewState() *State {
	return &State{
		Height:      0,
		NextGameID:  1,
		ActiveGames: []uint64{},
		Games:       map[uint64]*Session{},
		Actions:     map[uint64][]Action{},
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
	}
}

// Normalize repairs zero values after JSON decoding so decoded state behaves
// like NewState output.
func (s *State) Normalize() {
	if s.ActiveGames == nil {
		s.ActiveGames = []uint64{}
	}
	if s.Games == nil {
		s.Games = map[uint64]*Session{}
	}
	if s.Actions == nil {
		s.Actions = map[uint64][]Action{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.NextGameID == 0 {
		s.NextGameID = 1
	}
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.Normalize()
	return &out, nil
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: marshal with stable key ordering by serializing
	// a normalized view.
	//
	// Note: encoding/json does NOT guarantee map key order, so we manually
	// normalize maps into slices.
	type gameKV struct {
		ID      uint64   `json:"id"`
		Session *Session `json:"session"`
	}
	type actionsKV struct {
		ID  uint64   `json:"id"`
		Log []Action `json:"log"`
	}
	type accountKeyKV struct {
		Account string `json:"account"`
		PubKey  []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}

	games := make([]gameKV, 0, len(s.Games))
	for id, g := range s.Games {
		games = append(games, gameKV{ID: id, Session: g})
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })

	actions := make([]actionsKV, 0, len(s.Actions))
	for id, log := range s.Actions {
		actions = append(actions, actionsKV{ID: id, Log: log})
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Account: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Account < accountKeys[j].Account })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	normalized := struct {
		Height      int64          `json:"height"`
		NextGameID  uint64         `json:"nextGameId"`
		ActiveGames []uint64       `json:"activeGames"`
		Games       []gameKV       `json:"games"`
		Actions     []actionsKV    `json:"actions"`
		AccountKeys []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax    []nonceKV      `json:"nonceMax,omitempty"`
	}{
		Height:      s.Height,
		NextGameID:  s.NextGameID,
		ActiveGames: s.ActiveGames,
		Games:       games,
		Actions:     actions,
		AccountKeys: accountKeys,
		NonceMax:    nonces,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// RemoveActive deletes the first occurrence of id from the active index,
// preserving the order of the remaining entries. Reports whether an entry
// was removed.
func (s *State) RemoveActive(id uint64) bool {
	for i, v := range s.ActiveGames {
		if v == id {
			s.ActiveGames = append(s.ActiveGames[:i], s.ActiveGames[i+1:]...)
			return true
		}
	}
	return false
}

// ---- Sessions ----

// Session is one independent game instance: its roster (insertion order
// defines turn order), turn state, lifecycle flags and running state
// commitment.
type Session struct {
	ID      uint64 `json:"id"`
	Creator string `json:"creator"`

	Players []string `json:"players"`

	Active  bool `json:"active"`
	Started bool `json:"started"`

	CurrentPlayerIndex int    `json:"currentPlayerIndex"`
	TurnCount          uint64 `json:"turnCount"`
	DirectionClockwise bool   `json:"directionClockwise"`

	StateHash    []byte `json:"stateHash"` // 32-byte running commitment
	LastActionAt int64  `json:"lastActionAt"`
}

// Action is an immutable record appended to a session's action log. The
// commitment is opaque to the chain; game-rule legality is a client concern.
type Action struct {
	Player     string `json:"player"`
	Commitment []byte `json:"commitment"`
	Timestamp  int64  `json:"timestamp"`
}

// NewSession seeds a session with the creator as sole roster member and
// computes the genesis commitment.
func NewSession(id uint64, creator string, now int64) *Session {
	roster := []string{creator}
	return &Session{
		ID:                 id,
		Creator:            creator,
		Players:            roster,
		Active:             true,
		Started:            false,
		CurrentPlayerIndex: 0,
		TurnCount:          0,
		DirectionClockwise: true,
		StateHash:          commit.GenesisDigest(id, now, creator, roster),
		LastActionAt:       now,
	}
}

// CurrentPlayer returns the roster member holding the turn, or "" if the
// roster is empty.
func (g *Session) CurrentPlayer() string {
	if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.Players) {
		return ""
	}
	return g.Players[g.CurrentPlayerIndex]
}

func (g *Session) IsCurrentPlayer(player string) bool {
	return player != "" && g.CurrentPlayer() == player
}

// AdvanceTurn moves the turn to the next roster member in the current
// direction and bumps the turn count. The step is +1 clockwise and
// len(players)-1 otherwise, i.e. -1 with wraparound, which keeps the
// transition reversible for replay verification.
func (g *Session) AdvanceTurn(now int64) {
	n := len(g.Players)
	if n == 0 {
		return
	}
	step := 1
	if !g.DirectionClockwise {
		step = n - 1
	}
	g.CurrentPlayerIndex = (g.CurrentPlayerIndex + step) % n
	g.TurnCount++
	g.LastActionAt = now
}

// Digest recomputes the canonical full-session digest with chainStep as the
// binding input from the per-action hash chain.
func (g *Session) Digest(chainStep []byte) []byte {
	return commit.SessionDigest(
		g.ID,
		g.Players,
		g.Active,
		g.CurrentPlayerIndex,
		g.LastActionAt,
		g.TurnCount,
		g.DirectionClockwise,
		chainStep,
	)
}
