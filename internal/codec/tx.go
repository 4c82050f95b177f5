package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the v0 transaction container.
//
// CometBFT transactions are opaque bytes. For v0 localnet we use JSON-encoded
// txs to move fast; this is NOT the final protocol encoding.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// v0 tx auth (optional):
	// - Nonce: included in the signed message for replay protection (must increase per signer).
	// - Signer: logical signer id (the acting account).
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	//
	// Note: This is still a scaffold; it is NOT the final protocol encoding.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Auth (v0) ----

// v0: account pubkey registration for tx authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Uno ----

type UnoCreateGameTx struct {
	Creator string `json:"creator"`
}

type UnoJoinGameTx struct {
	Player string `json:"player"`
	GameID uint64 `json:"gameId"`
}

type UnoStartGameTx struct {
	Caller string `json:"caller"`
	GameID uint64 `json:"gameId"`
	// InitialStateHash is the 32-byte commitment the roster agreed on
	// off-chain (e.g. a shuffle seed digest). The chain records it verbatim.
	InitialStateHash []byte `json:"initialStateHash"`
}

type UnoSubmitActionTx struct {
	Player string `json:"player"`
	GameID uint64 `json:"gameId"`
	// Commitment is an opaque 32-byte digest of the move; the chain never
	// validates game-rule legality.
	Commitment []byte `json:"commitment"`
	// Reverse declares a direction change (UNO reverse) applied before the
	// turn advances.
	Reverse bool `json:"reverse,omitempty"`
}

type UnoEndGameTx struct {
	Caller string `json:"caller"`
	GameID uint64 `json:"gameId"`
}
