package app

import (
	"fmt"
	"testing"
)

func TestJoinGame_CapacityBoundsAtTen(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := createTestGame(t, a, blockTime, "p0")
	for i := 1; i < 10; i++ {
		mustOk(t, a.deliverTx(txBytes(t, "uno/join_game", map[string]any{
			"gameId": id, "player": fmt.Sprintf("p%d", i),
		}), blockTime))
	}

	g := a.st.Games[id]
	if len(g.Players) != 10 {
		t.Fatalf("expected 10 players, got %d", len(g.Players))
	}

	// The 11th member is refused and the roster is untouched.
	res := a.deliverTx(txBytes(t, "uno/join_game", map[string]any{"gameId": id, "player": "p10"}), blockTime)
	mustFail(t, res, ErrCapacity.ABCICode())
	if len(g.Players) != 10 {
		t.Fatalf("failed join mutated roster: %d players", len(g.Players))
	}
}

func TestJoinGame_RejectedAfterStart(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := setupStartedGame(t, a, blockTime, "alice", "bob")
	res := a.deliverTx(txBytes(t, "uno/join_game", map[string]any{"gameId": id, "player": "carol"}), blockTime)
	mustFail(t, res, ErrInvalidState.ABCICode())
	if got := len(a.st.Games[id].Players); got != 2 {
		t.Fatalf("failed join mutated roster: %d players", got)
	}
}

func TestJoinGame_RejectedAfterEndAndForUnknownID(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := createTestGame(t, a, blockTime, "alice")
	mustOk(t, a.deliverTx(txBytes(t, "uno/end_game", map[string]any{"gameId": id, "caller": "alice"}), blockTime))

	res := a.deliverTx(txBytes(t, "uno/join_game", map[string]any{"gameId": id, "player": "bob"}), blockTime)
	mustFail(t, res, ErrInvalidState.ABCICode())

	res = a.deliverTx(txBytes(t, "uno/join_game", map[string]any{"gameId": uint64(99), "player": "bob"}), blockTime)
	mustFail(t, res, ErrNotFound.ABCICode())
}

func TestStartGame_RequiresTwoPlayers(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := createTestGame(t, a, blockTime, "alice")
	res := a.deliverTx(txBytes(t, "uno/start_game", map[string]any{
		"gameId": id, "caller": "alice", "initialStateHash": testHash("h0"),
	}), blockTime)
	mustFail(t, res, ErrInvalidState.ABCICode())

	g := a.st.Games[id]
	if g.Started {
		t.Fatalf("failed start must not mark game started")
	}
}

func TestStartGame_RejectsSecondStartAndBadHashLength(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := setupStartedGame(t, a, blockTime, "alice", "bob")

	res := a.deliverTx(txBytes(t, "uno/start_game", map[string]any{
		"gameId": id, "caller": "alice", "initialStateHash": testHash("h1"),
	}), blockTime)
	mustFail(t, res, ErrInvalidState.ABCICode())
	if got := a.st.Games[id].StateHash; string(got) != string(testHash("h0")) {
		t.Fatalf("second start overwrote the state hash")
	}

	id2 := createTestGame(t, a, blockTime, "carol")
	mustOk(t, a.deliverTx(txBytes(t, "uno/join_game", map[string]any{"gameId": id2, "player": "dave"}), blockTime))
	res = a.deliverTx(txBytes(t, "uno/start_game", map[string]any{
		"gameId": id2, "caller": "carol", "initialStateHash": []byte{1, 2, 3},
	}), blockTime)
	mustFail(t, res, ErrInvalidTx.ABCICode())
}

func TestSubmitAction_OnlyTurnHolderAccepted(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := setupStartedGame(t, a, blockTime, "alice", "bob", "carol")
	g := a.st.Games[id]
	hashBefore := append([]byte(nil), g.StateHash...)

	// bob is not on turn.
	res := a.deliverTx(txBytes(t, "uno/submit_action", map[string]any{
		"gameId": id, "player": "bob", "commitment": testHash("a1"),
	}), blockTime)
	mustFail(t, res, ErrNotAuthorized.ABCICode())

	if g.TurnCount != 0 || g.CurrentPlayerIndex != 0 {
		t.Fatalf("rejected action advanced the turn: count=%d index=%d", g.TurnCount, g.CurrentPlayerIndex)
	}
	if string(g.StateHash) != string(hashBefore) {
		t.Fatalf("rejected action changed the state hash")
	}
	if len(a.st.Actions[id]) != 0 {
		t.Fatalf("rejected action was logged")
	}

	// A stranger is refused even when the index would match their claim.
	res = a.deliverTx(txBytes(t, "uno/submit_action", map[string]any{
		"gameId": id, "player": "mallory", "commitment": testHash("a1"),
	}), blockTime)
	mustFail(t, res, ErrNotAuthorized.ABCICode())
}

func TestSubmitAction_RequiresStartedActiveGame(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := createTestGame(t, a, blockTime, "alice")
	res := a.deliverTx(txBytes(t, "uno/submit_action", map[string]any{
		"gameId": id, "player": "alice", "commitment": testHash("a1"),
	}), blockTime)
	mustFail(t, res, ErrInvalidState.ABCICode())

	res = a.deliverTx(txBytes(t, "uno/submit_action", map[string]any{
		"gameId": uint64(42), "player": "alice", "commitment": testHash("a1"),
	}), blockTime)
	mustFail(t, res, ErrNotFound.ABCICode())
}

func TestSubmitAction_TurnIndexStaysInRosterBounds(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	players := []string{"p0", "p1", "p2", "p3"}
	id := setupStartedGame(t, a, blockTime, players...)

	for k := 1; k <= 9; k++ {
		// Look the session up fresh: a successful tx replaces the live state.
		actor := players[a.st.Games[id].CurrentPlayerIndex]
		mustOk(t, a.deliverTx(txBytes(t, "uno/submit_action", map[string]any{
			"gameId": id, "player": actor, "commitment": testHash(fmt.Sprintf("a%d", k)),
		}), blockTime))
		g := a.st.Games[id]
		if g.TurnCount != uint64(k) {
			t.Fatalf("turnCount=%d after %d actions", g.TurnCount, k)
		}
		if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.Players) {
			t.Fatalf("index %d out of bounds for roster %d", g.CurrentPlayerIndex, len(g.Players))
		}
	}
}

func TestSubmitAction_ReverseFlipsDirectionBeforeAdvance(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := setupStartedGame(t, a, blockTime, "A", "B", "C")

	// A reverses: direction flips and the turn moves counter-clockwise to C.
	mustOk(t, a.deliverTx(txBytes(t, "uno/submit_action", map[string]any{
		"gameId": id, "player": "A", "commitment": testHash("a1"), "reverse": true,
	}), blockTime))
	g := a.st.Games[id]
	if g.DirectionClockwise {
		t.Fatalf("expected counter-clockwise direction after reverse")
	}
	if g.CurrentPlayer() != "C" {
		t.Fatalf("expected C on turn after reverse, got %q", g.CurrentPlayer())
	}

	// C reverses back: clockwise again, next is A.
	mustOk(t, a.deliverTx(txBytes(t, "uno/submit_action", map[string]any{
		"gameId": id, "player": "C", "commitment": testHash("a2"), "reverse": true,
	}), blockTime))
	g = a.st.Games[id]
	if !g.DirectionClockwise {
		t.Fatalf("expected clockwise direction after second reverse")
	}
	if g.CurrentPlayer() != "A" {
		t.Fatalf("expected A on turn, got %q", g.CurrentPlayer())
	}
}

func TestEndGame_OnlyTurnHolderMayEnd(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	id := setupStartedGame(t, a, blockTime, "alice", "bob")
	res := a.deliverTx(txBytes(t, "uno/end_game", map[string]any{"gameId": id, "caller": "bob"}), blockTime)
	mustFail(t, res, ErrNotAuthorized.ABCICode())
	if !a.st.Games[id].Active {
		t.Fatalf("rejected end deactivated the game")
	}

	mustOk(t, a.deliverTx(txBytes(t, "uno/end_game", map[string]any{"gameId": id, "caller": "alice"}), blockTime))
	if a.st.Games[id].Active {
		t.Fatalf("expected game ended")
	}

	// Terminal: a second end is an invalid state, not a no-op.
	res = a.deliverTx(txBytes(t, "uno/end_game", map[string]any{"gameId": id, "caller": "alice"}), blockTime)
	mustFail(t, res, ErrInvalidState.ABCICode())
}

func TestEndGame_RemovesFirstIndexEntryPreservingOrder(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	for _, creator := range []string{"a", "b", "c"} {
		createTestGame(t, a, blockTime, creator)
	}
	mustOk(t, a.deliverTx(txBytes(t, "uno/end_game", map[string]any{"gameId": uint64(2), "caller": "b"}), blockTime))

	want := []uint64{1, 3}
	if len(a.st.ActiveGames) != len(want) {
		t.Fatalf("active index = %v, want %v", a.st.ActiveGames, want)
	}
	for i := range want {
		if a.st.ActiveGames[i] != want[i] {
			t.Fatalf("active index = %v, want %v", a.st.ActiveGames, want)
		}
	}

	// Ids remain monotonic after an end; nothing is reused.
	if id := createTestGame(t, a, blockTime, "d"); id != 4 {
		t.Fatalf("expected id=4 after ending game 2, got %d", id)
	}
}

func TestEndGame_CreatorMayEndUnstartedGame(t *testing.T) {
	const blockTime = int64(100)
	a := newTestApp(t)

	// Before start the creator holds index 0, so the turn-holder policy
	// lets exactly the creator abort a lobby.
	id := createTestGame(t, a, blockTime, "alice")
	mustOk(t, a.deliverTx(txBytes(t, "uno/join_game", map[string]any{"gameId": id, "player": "bob"}), blockTime))

	res := a.deliverTx(txBytes(t, "uno/end_game", map[string]any{"gameId": id, "caller": "bob"}), blockTime)
	mustFail(t, res, ErrNotAuthorized.ABCICode())

	mustOk(t, a.deliverTx(txBytes(t, "uno/end_game", map[string]any{"gameId": id, "caller": "alice"}), blockTime))
}
