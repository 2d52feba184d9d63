package block

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"healthledger/core/types"
	"healthledger/types/ids"
)

// ZeroHash is the previous_hash of the genesis block.
var ZeroHash = strings.Repeat("0", ids.HexLen)

type Block struct {
	Index        uint64              `json:"index"`         // Position in the chain (genesis = 0)
	Timestamp    float64             `json:"timestamp"`     // Seconds since epoch, fixed when sealing starts
	Transactions []types.Transaction `json:"transactions"`  // Ordered, non-empty except genesis
	PreviousHash string              `json:"previous_hash"` // Hash of the block at Index-1, ZeroHash for genesis
	Nonce        uint64              `json:"nonce"`         // Found by the miner
	Hash         string              `json:"hash"`          // Digest of every field above
}

// ComputeHash digests the block fields (excluding Hash itself). The digest is
// a pure function of the stored values so it recomputes identically after a
// save/load round trip.
func (b *Block) ComputeHash() (string, error) {
	return HashHeader(b.Index, b.Timestamp, b.Transactions, b.PreviousHash, b.Nonce)
}

// HashHeader is ComputeHash without a Block, used by the miner's inner loop.
// It fails only when a transaction cannot be encoded.
func HashHeader(index uint64, timestamp float64, txs []types.Transaction, prevHash string, nonce uint64) (string, error) {
	if txs == nil {
		txs = []types.Transaction{}
	}
	header := struct {
		Index        uint64              `json:"index"`
		Timestamp    float64             `json:"timestamp"`
		Transactions []types.Transaction `json:"transactions"`
		PreviousHash string              `json:"previous_hash"`
		Nonce        uint64              `json:"nonce"`
	}{index, timestamp, txs, prevHash, nonce}
	data, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("encode block %d header: %w", index, err)
	}
	return ids.NewID(data).String(), nil
}

// MeetsDifficulty reports whether hash starts with at least difficulty zero
// hex characters.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}

// Time converts the float timestamp back to a time.Time.
func (b *Block) Time() time.Time {
	return time.UnixMicro(int64(math.Round(b.Timestamp * 1e6))).UTC()
}

// Timestamp converts t to the float seconds stored on a block, truncated to
// microseconds so the decimal form stays short and parses back exactly.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// FindTransaction returns the position of txID inside the block.
func (b *Block) FindTransaction(txID string) (int, bool) {
	for i := range b.Transactions {
		if b.Transactions[i].ID == txID {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a copy whose transaction slice is not shared with b.
func (b *Block) Clone() Block {
	c := *b
	c.Transactions = append([]types.Transaction(nil), b.Transactions...)
	return c
}
