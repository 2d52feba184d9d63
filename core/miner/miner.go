package miner

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"healthledger/core/block"
	"healthledger/core/logging"
	"healthledger/core/types"
)

// ErrMiningExhausted means no nonce up to MaxNonce met the target. It points
// at a difficulty that is too high for the configured nonce space.
var ErrMiningExhausted = errors.New("mining exhausted nonce space")

const (
	DefaultMaxNonce          uint64 = 1 << 32
	DefaultOffloadDifficulty        = 5
	MaxDifficulty                   = 64

	// WorkHeadroom is how many times the expected work a nonce space must
	// cover for a difficulty to be accepted by configuration.
	WorkHeadroom = 16
)

// ExpectedWork is the mean number of hashes needed to find a seal at
// difficulty, 16^difficulty, saturating at math.MaxUint64.
func ExpectedWork(difficulty int) uint64 {
	if difficulty <= 0 {
		return 1
	}
	if difficulty >= 16 {
		return math.MaxUint64
	}
	return uint64(1) << (4 * uint(difficulty))
}

// Feasible reports whether maxNonce leaves WorkHeadroom times the expected
// work for difficulty.
func Feasible(difficulty int, maxNonce uint64) bool {
	return ExpectedWork(difficulty) <= maxNonce/WorkHeadroom
}

// Template is a block waiting for its nonce.
type Template struct {
	Index        uint64
	PreviousHash string
	Transactions []types.Transaction
	// NotBefore is the timestamp of the current tail; the sealed block never
	// goes backwards in time even if the wall clock does.
	NotBefore float64
}

// Miner seals blocks by brute-force nonce search.
type Miner struct {
	MaxNonce uint64
	// Searches at or above this difficulty run on a dedicated worker
	// goroutine locked to its own OS thread. Zero disables offloading.
	OffloadDifficulty int
	Now               func() time.Time
	log               *slog.Logger
}

// New returns a miner with default limits.
func New(logger *slog.Logger) *Miner {
	return &Miner{
		MaxNonce:          DefaultMaxNonce,
		OffloadDifficulty: DefaultOffloadDifficulty,
		Now:               time.Now,
		log:               logging.Component(logger, "miner"),
	}
}

// Seal finds the first nonce, counting from 0, whose block hash has at least
// difficulty leading zero hex characters. The timestamp is captured once
// before the search starts.
func (m *Miner) Seal(tmpl Template, difficulty int) (block.Block, error) {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return block.Block{}, fmt.Errorf("difficulty %d outside 0..%d", difficulty, MaxDifficulty)
	}
	if w := ExpectedWork(difficulty); w > m.maxNonce() {
		return block.Block{}, fmt.Errorf("%w: difficulty %d needs about %d hashes, max_nonce is %d",
			ErrMiningExhausted, difficulty, w, m.maxNonce())
	}
	if m.OffloadDifficulty > 0 && difficulty >= m.OffloadDifficulty {
		return m.sealOnWorker(tmpl, difficulty)
	}
	return m.search(tmpl, difficulty)
}

type sealResult struct {
	blk block.Block
	err error
}

// sealOnWorker runs the search on its own OS thread and waits for it. There
// is no cancellation: a started search finishes or exhausts.
func (m *Miner) sealOnWorker(tmpl Template, difficulty int) (block.Block, error) {
	done := make(chan sealResult, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		b, err := m.search(tmpl, difficulty)
		done <- sealResult{b, err}
	}()
	r := <-done
	return r.blk, r.err
}

func (m *Miner) search(tmpl Template, difficulty int) (block.Block, error) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	maxNonce := m.maxNonce()
	txs := tmpl.Transactions
	if txs == nil {
		txs = []types.Transaction{}
	}

	ts := block.Timestamp(now())
	if ts < tmpl.NotBefore {
		ts = tmpl.NotBefore
	}

	start := time.Now()
	for nonce := uint64(0); ; nonce++ {
		hash, err := block.HashHeader(tmpl.Index, ts, txs, tmpl.PreviousHash, nonce)
		if err != nil {
			return block.Block{}, err
		}
		if block.MeetsDifficulty(hash, difficulty) {
			m.logger().Debug("block sealed",
				"index", tmpl.Index,
				"nonce", nonce,
				"hash", hash,
				"txs", len(txs),
				"elapsed", time.Since(start))
			return block.Block{
				Index:        tmpl.Index,
				Timestamp:    ts,
				Transactions: txs,
				PreviousHash: tmpl.PreviousHash,
				Nonce:        nonce,
				Hash:         hash,
			}, nil
		}
		if nonce == maxNonce {
			break
		}
	}
	m.logger().Error("nonce space exhausted", "index", tmpl.Index, "difficulty", difficulty, "max_nonce", maxNonce)
	return block.Block{}, fmt.Errorf("%w: index %d difficulty %d max_nonce %d", ErrMiningExhausted, tmpl.Index, difficulty, maxNonce)
}

func (m *Miner) maxNonce() uint64 {
	if m.MaxNonce == 0 {
		return DefaultMaxNonce
	}
	return m.MaxNonce
}

func (m *Miner) logger() *slog.Logger {
	if m.log == nil {
		return logging.Component(nil, "miner")
	}
	return m.log
}
