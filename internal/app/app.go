package app

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"onchainuno/internal/codec"
	"onchainuno/internal/state"
	"onchainuno/internal/store"
)

const (
	AppVersion uint64 = 1
)

// UnoApp is the deterministic session ledger behind the ABCI boundary.
// CometBFT delivers transactions strictly sequentially per block, so a
// single mutex around the shared state is the whole concurrency story.
type UnoApp struct {
	*abci.BaseApplication

	logger log.Logger
	db     store.Store

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(db store.Store, logger log.Logger) (*UnoApp, error) {
	st, err := db.Load()
	if err != nil {
		return nil, err
	}
	a := &UnoApp{
		BaseApplication: abci.NewBaseApplication(),
		logger:          logger,
		db:              db,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *UnoApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "onchainuno (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *UnoApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// v0: only structural validation; stateful auth happens at delivery.
	if isSignedEnvelope(env) {
		if err := requireSignedEnvelope(env); err != nil {
			return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
		}
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *UnoApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	// v0: no special genesis handling.
	return &abci.InitChainResponse{}, nil
}

func (a *UnoApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	blockTime := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, blockTime)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()
	a.logger.Info("finalized block", "height", req.Height, "txs", len(req.Txs))

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *UnoApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Persist after each block for devnet durability.
	if err := a.db.Save(a.st); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		a.logger.Error("persist state", "err", err)
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

// deliverTx executes one tx against a staged clone of the state. The clone
// replaces the live state only on success; a rejected tx has zero observable
// side effects and emits no events.
func (a *UnoApp) deliverTx(txBytes []byte, blockTime int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return errTxResult(ErrInvalidTx.Wrap(err.Error()))
	}

	staged, err := a.st.Clone()
	if err != nil {
		return errTxResult(ErrUnavailable.Wrapf("stage state: %v", err))
	}

	res, err := applyTx(staged, env, blockTime)
	if err != nil {
		a.logger.Debug("tx rejected", "type", env.Type, "err", err)
		return errTxResult(err)
	}

	a.st = staged
	a.logger.Debug("tx applied", "type", env.Type)
	return res
}

func (a *UnoApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /games
	// - /game/<id>
	// - /game/<id>/actions
	// - /game/<id>/turn/<player>
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/games":
		b, _ := json.Marshal(a.st.ActiveGames)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/game/"):
		parts := strings.Split(strings.TrimPrefix(path, "/game/"), "/")
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return errQueryResult(ErrInvalidTx.Wrapf("invalid game id %q", parts[0]), a.st.Height), nil
		}
		switch {
		case len(parts) == 1:
			g := a.st.Games[id]
			if g == nil {
				return errQueryResult(ErrNotFound.Wrapf("game %d", id), a.st.Height), nil
			}
			b, _ := json.Marshal(g)
			return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

		case len(parts) == 2 && parts[1] == "actions":
			// Unknown ids normalize to an empty log on this read path.
			actions := a.st.Actions[id]
			if actions == nil {
				actions = []state.Action{}
			}
			b, _ := json.Marshal(actions)
			return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

		case len(parts) == 3 && parts[1] == "turn":
			g := a.st.Games[id]
			if g == nil {
				return errQueryResult(ErrNotFound.Wrapf("game %d", id), a.st.Height), nil
			}
			b, _ := json.Marshal(map[string]any{
				"gameId": id,
				"player": parts[2],
				"isTurn": g.IsCurrentPlayer(parts[2]),
			})
			return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
		}
		return errQueryResult(ErrInvalidTx.Wrapf("unknown query path %q", path), a.st.Height), nil

	default:
		return errQueryResult(ErrInvalidTx.Wrapf("unknown query path %q", path), a.st.Height), nil
	}
}
