package validation

import (
	"fmt"

	"healthledger/core/block"
)

// Result is the outcome of a full chain walk.
type Result struct {
	IsValid           bool    `json:"is_valid"`
	FirstInvalidIndex *uint64 `json:"first_invalid_index,omitempty"`
	Reason            string  `json:"reason,omitempty"`
	CheckedBlocks     int     `json:"checked_blocks"`
}

func invalid(at uint64, checked int, format string, args ...any) Result {
	return Result{
		IsValid:           false,
		FirstInvalidIndex: &at,
		Reason:            fmt.Sprintf(format, args...),
		CheckedBlocks:     checked,
	}
}

// ValidateChain walks blocks from genesis and stops at the first violation.
// It only reads blocks; callers pass a snapshot and may run it alongside
// other readers. An empty chain is valid.
func ValidateChain(blocks []block.Block, difficulty int) Result {
	seen := make(map[string]uint64)
	var prevHash string
	var prevTimestamp float64

	for i := range blocks {
		b := &blocks[i]
		pos := uint64(i)
		checked := i + 1

		if b.Index != pos {
			return invalid(pos, checked, "block at position %d carries index %d", pos, b.Index)
		}
		recomputed, err := b.ComputeHash()
		if err != nil {
			return invalid(pos, checked, "block %d cannot be hashed: %v", pos, err)
		}
		if recomputed != b.Hash {
			return invalid(pos, checked, "block %d hash mismatch: stored %s, recomputed %s", pos, b.Hash, recomputed)
		}
		if !block.MeetsDifficulty(recomputed, difficulty) {
			return invalid(pos, checked, "block %d hash %s does not meet difficulty %d", pos, recomputed, difficulty)
		}
		if pos == 0 {
			if b.PreviousHash != block.ZeroHash {
				return invalid(pos, checked, "genesis previous_hash %q is not the zero sentinel", b.PreviousHash)
			}
		} else {
			if b.PreviousHash != prevHash {
				return invalid(pos, checked, "block %d previous_hash %s does not link to block %d hash %s", pos, b.PreviousHash, pos-1, prevHash)
			}
			if b.Timestamp < prevTimestamp {
				return invalid(pos, checked, "block %d timestamp %f is earlier than block %d timestamp %f", pos, b.Timestamp, pos-1, prevTimestamp)
			}
			if len(b.Transactions) == 0 {
				return invalid(pos, checked, "block %d has no transactions", pos)
			}
		}
		for _, tx := range b.Transactions {
			if first, dup := seen[tx.ID]; dup {
				return invalid(pos, checked, "block %d repeats transaction %s first sealed in block %d", pos, tx.ID, first)
			}
			seen[tx.ID] = pos
		}

		prevHash = recomputed
		prevTimestamp = b.Timestamp
	}
	return Result{IsValid: true, CheckedBlocks: len(blocks)}
}
