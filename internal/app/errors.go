package app

import (
	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
)

// Codespace scopes the application's ABCI error codes.
const Codespace = "uno"

// Failure kinds carried on every rejected operation. Domain errors
// (NotFound, InvalidState, NotAuthorized, Capacity) are deterministic
// functions of state and input; Unavailable is environmental only.
var (
	ErrInvalidTx     = errorsmod.Register(Codespace, 2, "invalid transaction")
	ErrNotFound      = errorsmod.Register(Codespace, 3, "game not found")
	ErrInvalidState  = errorsmod.Register(Codespace, 4, "invalid game state")
	ErrNotAuthorized = errorsmod.Register(Codespace, 5, "not authorized")
	ErrCapacity      = errorsmod.Register(Codespace, 6, "roster at capacity")
	ErrUnavailable   = errorsmod.Register(Codespace, 7, "store unavailable")
)

func errTxResult(err error) *abci.ExecTxResult {
	space, code, log := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{Code: code, Codespace: space, Log: log}
}

func errQueryResult(err error, height int64) *abci.QueryResponse {
	space, code, log := errorsmod.ABCIInfo(err, false)
	return &abci.QueryResponse{Code: code, Codespace: space, Log: log, Height: height}
}
