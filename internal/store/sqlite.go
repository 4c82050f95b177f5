package store

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"onchainuno/internal/state"
)

// SQLiteStore persists the state normalized into one table per logical
// collection: session records, rosters, action logs, the active-id set and
// the counters. Each Save is a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id                   INTEGER PRIMARY KEY,
	creator              TEXT    NOT NULL,
	active               INTEGER NOT NULL,
	started              INTEGER NOT NULL,
	current_player_index INTEGER NOT NULL,
	turn_count           INTEGER NOT NULL,
	direction_clockwise  INTEGER NOT NULL,
	state_hash           BLOB    NOT NULL,
	last_action_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS rosters (
	game_id INTEGER NOT NULL,
	pos     INTEGER NOT NULL,
	player  TEXT    NOT NULL,
	PRIMARY KEY (game_id, pos)
);
CREATE TABLE IF NOT EXISTS actions (
	game_id    INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	player     TEXT    NOT NULL,
	commitment BLOB    NOT NULL,
	ts         INTEGER NOT NULL,
	PRIMARY KEY (game_id, seq)
);
CREATE TABLE IF NOT EXISTS active_games (
	pos     INTEGER PRIMARY KEY,
	game_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS account_keys (
	account TEXT PRIMARY KEY,
	pub_key BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS nonces (
	signer TEXT PRIMARY KEY,
	nonce  INTEGER NOT NULL
);
`

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(sqliteMigration); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (*state.State, error) {
	st := state.NewState()

	rows, err := s.db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		switch key {
		case "height":
			h, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse meta height %q: %w", value, err)
			}
			st.Height = h
		case "next_game_id":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse meta next_game_id %q: %w", value, err)
			}
			st.NextGameID = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}

	if err := s.loadSessions(st); err != nil {
		return nil, err
	}
	if err := s.loadActions(st); err != nil {
		return nil, err
	}
	if err := s.loadActiveGames(st); err != nil {
		return nil, err
	}
	if err := s.loadAuth(st); err != nil {
		return nil, err
	}
	st.Normalize()
	return st, nil
}

func (s *SQLiteStore) loadSessions(st *state.State) error {
	rows, err := s.db.Query(`
		SELECT id, creator, active, started, current_player_index,
		       turn_count, direction_clockwise, state_hash, last_action_at
		FROM sessions`)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		g := &state.Session{}
		if err := rows.Scan(&g.ID, &g.Creator, &g.Active, &g.Started,
			&g.CurrentPlayerIndex, &g.TurnCount, &g.DirectionClockwise,
			&g.StateHash, &g.LastActionAt); err != nil {
			return fmt.Errorf("scan session: %w", err)
		}
		st.Games[g.ID] = g
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	players, err := s.db.Query(`SELECT game_id, player FROM rosters ORDER BY game_id, pos`)
	if err != nil {
		return fmt.Errorf("load rosters: %w", err)
	}
	defer players.Close()
	for players.Next() {
		var id uint64
		var player string
		if err := players.Scan(&id, &player); err != nil {
			return fmt.Errorf("scan roster: %w", err)
		}
		if g := st.Games[id]; g != nil {
			g.Players = append(g.Players, player)
		}
	}
	return players.Err()
}

func (s *SQLiteStore) loadActions(st *state.State) error {
	rows, err := s.db.Query(`SELECT game_id, player, commitment, ts FROM actions ORDER BY game_id, seq`)
	if err != nil {
		return fmt.Errorf("load actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		var a state.Action
		if err := rows.Scan(&id, &a.Player, &a.Commitment, &a.Timestamp); err != nil {
			return fmt.Errorf("scan action: %w", err)
		}
		st.Actions[id] = append(st.Actions[id], a)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadActiveGames(st *state.State) error {
	rows, err := s.db.Query(`SELECT game_id FROM active_games ORDER BY pos`)
	if err != nil {
		return fmt.Errorf("load active games: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan active game: %w", err)
		}
		st.ActiveGames = append(st.ActiveGames, id)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadAuth(st *state.State) error {
	keys, err := s.db.Query(`SELECT account, pub_key FROM account_keys`)
	if err != nil {
		return fmt.Errorf("load account keys: %w", err)
	}
	defer keys.Close()
	for keys.Next() {
		var account string
		var pub []byte
		if err := keys.Scan(&account, &pub); err != nil {
			return fmt.Errorf("scan account key: %w", err)
		}
		st.AccountKeys[account] = pub
	}
	if err := keys.Err(); err != nil {
		return fmt.Errorf("load account keys: %w", err)
	}

	nonces, err := s.db.Query(`SELECT signer, nonce FROM nonces`)
	if err != nil {
		return fmt.Errorf("load nonces: %w", err)
	}
	defer nonces.Close()
	for nonces.Next() {
		var signer string
		var nonce uint64
		if err := nonces.Scan(&signer, &nonce); err != nil {
			return fmt.Errorf("scan nonce: %w", err)
		}
		st.NonceMax[signer] = nonce
	}
	return nonces.Err()
}

func (s *SQLiteStore) Save(st *state.State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"meta", "sessions", "rosters", "actions", "active_games", "account_keys", "nonces"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for key, value := range map[string]string{
		"height":       fmt.Sprintf("%d", st.Height),
		"next_game_id": fmt.Sprintf("%d", st.NextGameID),
	} {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("insert meta %s: %w", key, err)
		}
	}

	for id, g := range st.Games {
		if _, err := tx.Exec(`
			INSERT INTO sessions (id, creator, active, started, current_player_index,
				turn_count, direction_clockwise, state_hash, last_action_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, g.Creator, g.Active, g.Started, g.CurrentPlayerIndex,
			g.TurnCount, g.DirectionClockwise, g.StateHash, g.LastActionAt); err != nil {
			return fmt.Errorf("insert session %d: %w", id, err)
		}
		for pos, player := range g.Players {
			if _, err := tx.Exec(`INSERT INTO rosters (game_id, pos, player) VALUES (?, ?, ?)`,
				id, pos, player); err != nil {
				return fmt.Errorf("insert roster %d/%d: %w", id, pos, err)
			}
		}
	}

	for id, actions := range st.Actions {
		for seq, a := range actions {
			if _, err := tx.Exec(`INSERT INTO actions (game_id, seq, player, commitment, ts) VALUES (?, ?, ?, ?, ?)`,
				id, seq, a.Player, a.Commitment, a.Timestamp); err != nil {
				return fmt.Errorf("insert action %d/%d: %w", id, seq, err)
			}
		}
	}

	for pos, id := range st.ActiveGames {
		if _, err := tx.Exec(`INSERT INTO active_games (pos, game_id) VALUES (?, ?)`, pos, id); err != nil {
			return fmt.Errorf("insert active game %d: %w", id, err)
		}
	}

	for account, pub := range st.AccountKeys {
		if _, err := tx.Exec(`INSERT INTO account_keys (account, pub_key) VALUES (?, ?)`, account, pub); err != nil {
			return fmt.Errorf("insert account key %s: %w", account, err)
		}
	}
	for signer, nonce := range st.NonceMax {
		if _, err := tx.Exec(`INSERT INTO nonces (signer, nonce) VALUES (?, ?)`, signer, nonce); err != nil {
			return fmt.Errorf("insert nonce %s: %w", signer, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
