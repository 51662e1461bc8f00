package audit

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// ErrChainBroken indicates an entry whose hash or link does not verify.
var ErrChainBroken = errors.New("audit chain broken")

// ChainError names the first entry that fails verification.
type ChainError struct {
	EntityType string
	EntityID   string
	Seq        int64
	Reason     string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at %s/%s seq %d: %s", e.EntityType, e.EntityID, e.Seq, e.Reason)
}

// Is matches ErrChainBroken.
func (e *ChainError) Is(target error) bool {
	return target == ErrChainBroken
}

var digestKey = [32]byte{
	'f', 'a', 'b', 't', 'r', 'a', 'c', 'k', '.', 'a', 'u', 'd', 'i', 't', '.',
	'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("audit: CBOR encoder initialization failed: " + err.Error())
	}
}

// payload is the hashed form of an entry. Field numbers are fixed.
type payload struct {
	EntityType string            `cbor:"1,keyasint"`
	EntityID   string            `cbor:"2,keyasint"`
	Seq        int64             `cbor:"3,keyasint"`
	Action     string            `cbor:"4,keyasint"`
	PriorState string            `cbor:"5,keyasint"`
	NewState   string            `cbor:"6,keyasint"`
	ActorID    string            `cbor:"7,keyasint"`
	Reason     string            `cbor:"8,keyasint"`
	Details    map[string]string `cbor:"9,keyasint"`
	UnixMicro  int64             `cbor:"10,keyasint"`
	PrevHash   string            `cbor:"11,keyasint"`
}

// Digest computes the keyed BLAKE3 hash of the entry's deterministic CBOR encoding.
func Digest(e Entry) (string, error) {
	details := e.Details
	if len(details) == 0 {
		details = nil
	}
	data, err := encMode.Marshal(payload{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Seq:        e.Seq,
		Action:     e.Action,
		PriorState: e.PriorState,
		NewState:   e.NewState,
		ActorID:    e.ActorID,
		Reason:     e.Reason,
		Details:    details,
		UnixMicro:  e.Timestamp.UnixMicro(),
		PrevHash:   e.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("encode audit entry: %w", err)
	}
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		return "", fmt.Errorf("init audit hasher: %w", err)
	}
	_, _ = hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify checks one entity's entries, ordered by Seq, and returns the first broken link.
func Verify(entries []Entry) error {
	var prev *Entry
	for i := range entries {
		e := entries[i]
		fail := func(reason string) error {
			return &ChainError{EntityType: e.EntityType, EntityID: e.EntityID, Seq: e.Seq, Reason: reason}
		}
		switch {
		case prev == nil && (e.Seq != 1 || e.PrevHash != ""):
			return fail("chain does not start at seq 1")
		case prev != nil && e.Seq != prev.Seq+1:
			return fail(fmt.Sprintf("expected seq %d", prev.Seq+1))
		case prev != nil && e.PrevHash != prev.Hash:
			return fail("previous hash mismatch")
		case prev != nil && !e.Timestamp.After(prev.Timestamp):
			return fail("timestamp not increasing")
		}
		want, err := Digest(e)
		if err != nil {
			return err
		}
		if want != e.Hash {
			return fail("hash mismatch")
		}
		prev = &entries[i]
	}
	return nil
}
