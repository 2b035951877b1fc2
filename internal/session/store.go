package session

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/anacrolix/dht/v2/bep44"
	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

var _ bep44.Store = (*ItemStore)(nil)

// ItemStore persists DHT bep44 items in Badger, keyed by target, with a
// fixed TTL standing in for bep44's republish window. Del is a no-op:
// expiry is handled entirely by the TTL.
type ItemStore struct {
	db  *badger.DB
	ttl time.Duration
}

type badgerLogger struct {
	log zerolog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.log.Error().Msgf(f, v...) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn().Msgf(f, v...) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.log.Info().Msgf(f, v...) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.log.Debug().Msgf(f, v...) }

// NewItemStore opens (or creates) the Badger database backing the DHT
// item store at path.
func NewItemStore(path string, ttl time.Duration, log zerolog.Logger) (*ItemStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(&badgerLogger{log: log}).
		WithValueLogFileSize(1<<26 - 1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		db.Close()
		return nil, err
	}

	return &ItemStore{db: db, ttl: ttl}, nil
}

func (s *ItemStore) Put(i *bep44.Item) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	key := i.Target()
	var value bytes.Buffer
	if err := gob.NewEncoder(&value).Encode(i); err != nil {
		return err
	}

	e := badger.NewEntry(key[:], value.Bytes()).WithTTL(s.ttl)
	if err := tx.SetEntry(e); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *ItemStore) Get(t bep44.Target) (*bep44.Item, error) {
	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	dbi, err := tx.Get(t[:])
	if err == badger.ErrKeyNotFound {
		return nil, bep44.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}

	valb, err := dbi.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	var i *bep44.Item
	if err := gob.NewDecoder(bytes.NewBuffer(valb)).Decode(&i); err != nil {
		return nil, err
	}
	return i, nil
}

func (s *ItemStore) Del(t bep44.Target) error { return nil }

func (s *ItemStore) Close() error { return s.db.Close() }
