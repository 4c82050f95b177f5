package app

import (
	"encoding/json"
	"fmt"
	"sort"

	abci "github.com/cometbft/cometbft/abci/types"

	"onchainuno/internal/codec"
	"onchainuno/internal/commit"
	"onchainuno/internal/state"
)

// applyTx validates and executes one tx against st. st is a staged clone:
// on any error the caller discards it, so handlers may mutate freely and
// still leave zero observable side effects on failure.
func applyTx(st *state.State, env codec.TxEnvelope, now int64) (*abci.ExecTxResult, error) {
	switch env.Type {
	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidTx.Wrap("bad auth/register_account value")
		}
		return registerAccount(st, env, msg)

	case "uno/create_game":
		var msg codec.UnoCreateGameTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidTx.Wrap("bad uno/create_game value")
		}
		return createGame(st, env, msg, now)

	case "uno/join_game":
		var msg codec.UnoJoinGameTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidTx.Wrap("bad uno/join_game value")
		}
		return joinGame(st, env, msg)

	case "uno/start_game":
		var msg codec.UnoStartGameTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidTx.Wrap("bad uno/start_game value")
		}
		return startGame(st, env, msg, now)

	case "uno/submit_action":
		var msg codec.UnoSubmitActionTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidTx.Wrap("bad uno/submit_action value")
		}
		return submitAction(st, env, msg, now)

	case "uno/end_game":
		var msg codec.UnoEndGameTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidTx.Wrap("bad uno/end_game value")
		}
		return endGame(st, env, msg)

	default:
		return nil, ErrInvalidTx.Wrapf("unknown tx type: %s", env.Type)
	}
}

func registerAccount(st *state.State, env codec.TxEnvelope, msg codec.AuthRegisterAccountTx) (*abci.ExecTxResult, error) {
	if err := requireRegisterAccountAuth(env, msg); err != nil {
		return nil, ErrInvalidTx.Wrap(err.Error())
	}
	if err := checkAndBumpNonce(st, env); err != nil {
		return nil, ErrInvalidTx.Wrap(err.Error())
	}
	st.AccountKeys[msg.Account] = msg.PubKey
	return okEvent("AccountRegistered", map[string]string{
		"account": msg.Account,
	}), nil
}

func createGame(st *state.State, env codec.TxEnvelope, msg codec.UnoCreateGameTx, now int64) (*abci.ExecTxResult, error) {
	if err := authenticateCaller(st, env, msg.Creator); err != nil {
		return nil, err
	}

	id := st.NextGameID
	st.NextGameID++

	g := state.NewSession(id, msg.Creator, now)
	st.Games[id] = g
	st.ActiveGames = append(st.ActiveGames, id)

	return okEvent("SessionCreated", map[string]string{
		"gameId":    fmt.Sprintf("%d", id),
		"creator":   msg.Creator,
		"stateHash": commit.BytesToHex(g.StateHash),
	}), nil
}

func joinGame(st *state.State, env codec.TxEnvelope, msg codec.UnoJoinGameTx) (*abci.ExecTxResult, error) {
	if err := authenticateCaller(st, env, msg.Player); err != nil {
		return nil, err
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, ErrNotFound.Wrapf("game %d", msg.GameID)
	}
	if !g.Active {
		return nil, ErrInvalidState.Wrapf("game %d has ended", msg.GameID)
	}
	if g.Started {
		return nil, ErrInvalidState.Wrapf("game %d already started", msg.GameID)
	}
	if len(g.Players) >= state.MaxPlayers {
		return nil, ErrCapacity.Wrapf("game %d roster full (%d players)", msg.GameID, len(g.Players))
	}

	g.Players = append(g.Players, msg.Player)

	return okEvent("PlayerJoined", map[string]string{
		"gameId":     fmt.Sprintf("%d", msg.GameID),
		"player":     msg.Player,
		"rosterSize": fmt.Sprintf("%d", len(g.Players)),
	}), nil
}

func startGame(st *state.State, env codec.TxEnvelope, msg codec.UnoStartGameTx, now int64) (*abci.ExecTxResult, error) {
	if err := authenticateCaller(st, env, msg.Caller); err != nil {
		return nil, err
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, ErrNotFound.Wrapf("game %d", msg.GameID)
	}
	if !g.Active {
		return nil, ErrInvalidState.Wrapf("game %d has ended", msg.GameID)
	}
	if g.Started {
		return nil, ErrInvalidState.Wrapf("game %d already started", msg.GameID)
	}
	if len(g.Players) < state.MinPlayersToStart {
		return nil, ErrInvalidState.Wrapf("game %d needs at least %d players, have %d",
			msg.GameID, state.MinPlayersToStart, len(g.Players))
	}
	if len(msg.InitialStateHash) != commit.Size {
		return nil, ErrInvalidTx.Wrapf("initialStateHash must be %d bytes, got %d",
			commit.Size, len(msg.InitialStateHash))
	}

	// The supplied hash is recorded verbatim. Roster members are expected to
	// have agreed on it off-chain (e.g. a shuffle seed digest); the chain
	// does not check that the caller is a roster member.
	g.Started = true
	g.StateHash = msg.InitialStateHash
	g.LastActionAt = now

	return okEvent("SessionStarted", map[string]string{
		"gameId":    fmt.Sprintf("%d", msg.GameID),
		"caller":    msg.Caller,
		"stateHash": commit.BytesToHex(g.StateHash),
	}), nil
}

func submitAction(st *state.State, env codec.TxEnvelope, msg codec.UnoSubmitActionTx, now int64) (*abci.ExecTxResult, error) {
	if err := authenticateCaller(st, env, msg.Player); err != nil {
		return nil, err
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, ErrNotFound.Wrapf("game %d", msg.GameID)
	}
	if !g.Active {
		return nil, ErrInvalidState.Wrapf("game %d has ended", msg.GameID)
	}
	if !g.Started {
		return nil, ErrInvalidState.Wrapf("game %d not started", msg.GameID)
	}
	if !g.IsCurrentPlayer(msg.Player) {
		return nil, ErrNotAuthorized.Wrapf("not %s's turn (turn holder: %s)", msg.Player, g.CurrentPlayer())
	}
	if len(msg.Commitment) != commit.Size {
		return nil, ErrInvalidTx.Wrapf("commitment must be %d bytes, got %d", commit.Size, len(msg.Commitment))
	}

	chainStep := commit.Fold(g.StateHash, msg.Commitment)
	st.Actions[msg.GameID] = append(st.Actions[msg.GameID], state.Action{
		Player:     msg.Player,
		Commitment: msg.Commitment,
		Timestamp:  now,
	})

	// A declared reverse flips direction before the advance, so the next
	// turn holder is already in the new direction.
	if msg.Reverse {
		g.DirectionClockwise = !g.DirectionClockwise
	}
	g.AdvanceTurn(now)
	g.StateHash = g.Digest(chainStep)

	return okEvent("ActionSubmitted", map[string]string{
		"gameId":     fmt.Sprintf("%d", msg.GameID),
		"player":     msg.Player,
		"turnCount":  fmt.Sprintf("%d", g.TurnCount),
		"nextPlayer": g.CurrentPlayer(),
		"stateHash":  commit.BytesToHex(g.StateHash),
	}), nil
}

func endGame(st *state.State, env codec.TxEnvelope, msg codec.UnoEndGameTx) (*abci.ExecTxResult, error) {
	if err := authenticateCaller(st, env, msg.Caller); err != nil {
		return nil, err
	}
	g := st.Games[msg.GameID]
	if g == nil {
		return nil, ErrNotFound.Wrapf("game %d", msg.GameID)
	}
	if !g.Active {
		return nil, ErrInvalidState.Wrapf("game %d already ended", msg.GameID)
	}
	// Policy: only the current turn holder may end a session.
	if !g.IsCurrentPlayer(msg.Caller) {
		return nil, ErrNotAuthorized.Wrapf("not %s's turn (turn holder: %s)", msg.Caller, g.CurrentPlayer())
	}

	g.Active = false
	st.RemoveActive(msg.GameID)

	return okEvent("SessionEnded", map[string]string{
		"gameId":    fmt.Sprintf("%d", msg.GameID),
		"caller":    msg.Caller,
		"turnCount": fmt.Sprintf("%d", g.TurnCount),
	}), nil
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
