// Package ledger owns one chain for the lifetime of a process: the pending
// pool, the chain store, the miner and the integrity gate, behind the
// operations record-handling services call.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"healthledger/core/audit"
	"healthledger/core/chain"
	"healthledger/core/config"
	"healthledger/core/genesis"
	"healthledger/core/integrity"
	"healthledger/core/logging"
	"healthledger/core/mempool"
	"healthledger/core/miner"
	"healthledger/core/notify"
	"healthledger/core/storage"
	"healthledger/core/validation"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("ledger closed")

type options struct {
	logger    *slog.Logger
	audit     audit.AuditLogger
	notifier  notify.Notifier
	persister storage.Persister
	now       func() time.Time
}

// Option customises Open.
type Option func(*options)

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithAuditLogger(a audit.AuditLogger) Option { return func(o *options) { o.audit = a } }

func WithNotifier(n notify.Notifier) Option { return func(o *options) { o.notifier = n } }

// WithPersister bypasses cfg.Backend. The on_corrupt reinit policy needs a
// store Open created itself and is not applied to an injected persister.
func WithPersister(p storage.Persister) Option { return func(o *options) { o.persister = p } }

// WithClock overrides the clock used for consent expiry checks.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Ledger is the service object. It is safe for concurrent use.
type Ledger struct {
	cfg       config.Config
	store     *chain.Store
	pool      *mempool.Mempool
	gate      *integrity.Gate
	persister storage.Persister
	audit     audit.AuditLogger
	notifier  notify.Notifier
	log       *slog.Logger
	now       func() time.Time
	closers   []io.Closer

	// writeMu covers drain, seal, append and persist.
	writeMu sync.Mutex
	closed  atomic.Bool

	statusMu    sync.RWMutex
	lastResult  validation.Result
	validatedAt time.Time
}

// Open builds the ledger described by cfg, loads or creates its chain and
// validates it once. A storage.ErrCorruptedStore is returned unless
// cfg.OnCorrupt is reinit, in which case the store is quarantined and a new
// chain starts from genesis.
func Open(cfg config.Config, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}

	l := &Ledger{
		cfg:      cfg,
		pool:     mempool.NewMempool(cfg.PoolCapacity),
		log:      logging.Component(o.logger, "ledger"),
		now:      o.now,
		notifier: o.notifier,
		audit:    o.audit,
	}
	if l.notifier == nil {
		l.notifier = notify.NewLogNotifier(o.logger, cfg.AdminRecipient)
	}
	if l.audit == nil {
		if cfg.AuditLogPath == "" {
			l.audit = audit.NopAuditLogger{}
		} else {
			f, err := audit.OpenFile(cfg.AuditLogPath)
			if err != nil {
				return nil, err
			}
			l.audit = f
			l.closers = append(l.closers, f)
		}
	}

	gcfg := genesis.Default()
	if cfg.GenesisPath != "" {
		loaded, err := genesis.LoadGenesisConfig(cfg.GenesisPath)
		if err != nil {
			l.closeAll()
			return nil, err
		}
		gcfg = loaded
	}

	m := miner.New(o.logger)
	m.MaxNonce = cfg.MaxNonce
	m.OffloadDifficulty = cfg.OffloadDifficulty
	chainOpts := chain.Options{
		Difficulty: cfg.Difficulty,
		Genesis:    genesis.Func(gcfg),
		Logger:     o.logger,
	}

	if err := l.openStore(o.persister, m, chainOpts); err != nil {
		l.closeAll()
		return nil, err
	}
	l.gate = integrity.NewGate(l, l.notifier, cfg.DetectedBy, o.logger)

	if l.store.Created() {
		genesisBlock, _ := l.store.Latest()
		l.audit.LogEvent(audit.AuditEvent{
			EventType: audit.EventGenesisCreated,
			EntityID:  genesisBlock.Hash,
			Result:    "success",
			Metadata:  map[string]string{"difficulty": fmt.Sprint(l.store.Difficulty())},
		})
	} else {
		tip, _ := l.store.Latest()
		l.audit.LogEvent(audit.AuditEvent{
			EventType: audit.EventChainLoaded,
			EntityID:  tip.Hash,
			Result:    "success",
			Metadata:  map[string]string{"length": fmt.Sprint(l.store.Length())},
		})
	}

	l.ValidateChain()
	return l, nil
}

func (l *Ledger) openStore(injected storage.Persister, m *miner.Miner, opts chain.Options) error {
	err := l.initStore(injected, m, opts)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrCorruptedStore) || l.cfg.OnCorrupt != config.OnCorruptReinit || injected != nil {
		return err
	}

	dest, qerr := storage.Quarantine(l.cfg.StorePath)
	if qerr != nil {
		return fmt.Errorf("%w (quarantine failed: %v)", err, qerr)
	}
	l.log.Warn("corrupted store quarantined, starting a new chain",
		"path", l.cfg.StorePath, "quarantined_to", dest, "error", err)
	l.audit.LogEvent(audit.AuditEvent{
		EventType: audit.EventStoreQuarantined,
		EntityID:  l.cfg.StorePath,
		Result:    "reinitialised",
		Reason:    err.Error(),
		Metadata:  map[string]string{"quarantined_to": dest},
	})
	l.notifier.Notify(notify.Admin(notify.EventChainInvalid, "", "", "store quarantined to "+dest+": "+err.Error()))

	return l.initStore(nil, m, opts)
}

// initStore opens the persister unless one was injected and runs chain
// init. A store opened here is closed again on failure.
func (l *Ledger) initStore(injected storage.Persister, m *miner.Miner, opts chain.Options) error {
	p := injected
	if p == nil {
		var err error
		if p, err = storage.Open(l.cfg.Backend, l.cfg.StorePath); err != nil {
			return err
		}
	}
	store := chain.New(p, m, opts)
	if err := store.Init(); err != nil {
		if injected == nil {
			_ = p.Close()
		}
		return err
	}
	l.persister = p
	l.store = store
	return nil
}

// Close commits whatever is still pending, best effort, and releases the
// store. It is safe to call more than once.
func (l *Ledger) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var errs []error
	if !l.pool.IsEmpty() {
		pending := l.pool.Len()
		if _, err := l.commitLocked(); err != nil {
			l.log.Error("pending transactions not committed at shutdown", "count", pending, "error", err)
			errs = append(errs, err)
		}
	}
	if l.persister != nil {
		if err := l.persister.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	errs = append(errs, l.closeAll())
	return errors.Join(errs...)
}

func (l *Ledger) closeAll() error {
	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	l.closers = nil
	return errors.Join(errs...)
}

// Status is the admin-facing view of the last validation.
type Status struct {
	Open        bool              `json:"open"`
	Validation  validation.Result `json:"validation"`
	ValidatedAt time.Time         `json:"validated_at"`
}

func (l *Ledger) Status() Status {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return Status{Open: !l.closed.Load(), Validation: l.lastResult, ValidatedAt: l.validatedAt}
}
