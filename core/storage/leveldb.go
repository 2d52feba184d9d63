package storage

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	heightKey     = []byte("meta:height")
	difficultyKey = []byte("meta:difficulty")
	versionKey    = []byte("meta:version")
	blockPrefix   = []byte("block:")
)

func blockKey(index uint64) []byte {
	return []byte(fmt.Sprintf("block:%020d", index))
}

// LevelStore keeps one key per block plus meta keys. A Save is a single
// synced leveldb.Batch, which LevelDB applies atomically through its journal.
type LevelStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

func NewLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		if lerrors.IsCorrupted(err) {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedStore, err)
		}
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawHeight, err := s.db.Get(heightKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		if s.hasBlocks() {
			return nil, fmt.Errorf("%w: blocks present without %s", ErrCorruptedStore, heightKey)
		}
		return nil, nil
	}
	if err != nil {
		return nil, s.readErr(err)
	}
	height, err := strconv.ParseUint(string(rawHeight), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad height %q", ErrCorruptedStore, rawHeight)
	}
	difficulty, err := s.metaInt(difficultyKey)
	if err != nil {
		return nil, err
	}
	version, err := s.metaInt(versionKey)
	if err != nil {
		return nil, err
	}

	raw := make([][]byte, 0, height)
	for i := uint64(0); i < height; i++ {
		v, err := s.db.Get(blockKey(i), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fmt.Errorf("%w: block %d missing (height %d)", ErrCorruptedStore, i, height)
		}
		if err != nil {
			return nil, s.readErr(err)
		}
		raw = append(raw, v)
	}
	return decodeDocument(assembleDocument(version, difficulty, raw))
}

func (s *LevelStore) Save(doc Document) error {
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	batch := new(leveldb.Batch)
	for i := range doc.Chain {
		data, err := json.Marshal(&doc.Chain[i])
		if err != nil {
			return fmt.Errorf("encode block %d: %w", i, err)
		}
		batch.Put(blockKey(uint64(i)), data)
	}
	newHeight := uint64(len(doc.Chain))

	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop blocks beyond the new tail so a shorter document never leaves
	// stale entries behind.
	if rawHeight, err := s.db.Get(heightKey, nil); err == nil {
		if old, perr := strconv.ParseUint(string(rawHeight), 10, 64); perr == nil {
			for i := newHeight; i < old; i++ {
				batch.Delete(blockKey(i))
			}
		}
	}
	batch.Put(heightKey, []byte(strconv.FormatUint(newHeight, 10)))
	batch.Put(difficultyKey, []byte(strconv.Itoa(doc.Difficulty)))
	batch.Put(versionKey, []byte(strconv.Itoa(doc.Version)))
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

func (s *LevelStore) hasBlocks() bool {
	iter := s.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer iter.Release()
	return iter.Next()
}

func (s *LevelStore) metaInt(key []byte) (int, error) {
	v, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, fmt.Errorf("%w: missing %s", ErrCorruptedStore, key)
		}
		return 0, s.readErr(err)
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrCorruptedStore, key, v)
	}
	return n, nil
}

func (s *LevelStore) readErr(err error) error {
	if lerrors.IsCorrupted(err) {
		return fmt.Errorf("%w: %v", ErrCorruptedStore, err)
	}
	return fmt.Errorf("read leveldb: %w", err)
}
