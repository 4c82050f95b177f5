// Package commit implements the session commitment scheme: a per-action
// hash chain plus a canonical full-session digest recomputed after every
// accepted action. All digests are domain-separated, length-prefixed
// SHA-256, so an observer replaying the accepted action sequence against
// the same genesis digest reproduces byte-identical state hashes.
package commit

import (
	"crypto/sha256"
	"hash"
)

const Size = sha256.Size

var commitPrefix = []byte("UNOv1|commit|")

func updateLenBytes(h hash.Hash, b []byte) {
	h.Write(u32le(uint32(len(b))))
	h.Write(b)
}

func hashMsgs(domainSep string, msgs ...[]byte) []byte {
	h := sha256.New()
	h.Write(commitPrefix)
	updateLenBytes(h, []byte(domainSep))
	for _, m := range msgs {
		updateLenBytes(h, m)
	}
	return h.Sum(nil)
}

// Fold is the per-action chain step H(prior, commitment). It depends on
// nothing but its inputs.
func Fold(prior, actionCommitment []byte) []byte {
	return hashMsgs("chain", prior, actionCommitment)
}

// RosterDigest folds each member digest pairwise over an empty accumulator.
// Insertion order is significant: the roster defines turn order and two
// rosters with the same members in a different order commit differently.
func RosterDigest(players []string) []byte {
	acc := []byte{}
	for _, p := range players {
		member := hashMsgs("player", []byte(p))
		acc = hashMsgs("roster", acc, member)
	}
	return acc
}

// GenesisDigest is the initial state hash assigned at session creation:
// H(id, H(time, creator, RosterDigest(roster))).
func GenesisDigest(id uint64, unixTime int64, creator string, players []string) []byte {
	seed := hashMsgs("seed", i64le(unixTime), []byte(creator), RosterDigest(players))
	return hashMsgs("genesis", u64le(id), seed)
}

// SessionDigest is the canonical digest over the visible session snapshot.
// chainStep is the Fold output for the action that produced this snapshot,
// binding the full digest to the append-only chain.
func SessionDigest(id uint64, players []string, active bool, currentIndex int, lastActionAt int64, turnCount uint64, clockwise bool, chainStep []byte) []byte {
	return hashMsgs("session",
		u64le(id),
		RosterDigest(players),
		boolByte(active),
		u32le(uint32(currentIndex)),
		i64le(lastActionAt),
		u64le(turnCount),
		boolByte(clockwise),
		chainStep,
	)
}
