package params

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/buntdb"
)

// BuntStore keeps parameters in a buntdb file, or in memory when the path
// is ":memory:"
type BuntStore struct {
	db *buntdb.DB
}

// OpenBuntStore opens the database at path
func OpenBuntStore(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening parameter database: %w", err)
	}
	if err = db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configuring parameter database: %w", err)
	}

	return &BuntStore{db: db}, nil
}

func (s *BuntStore) Get(ctx context.Context, key string) (value string, err error) {
	if err = ctx.Err(); err != nil {
		return
	}

	err = s.db.View(func(tx *buntdb.Tx) error {
		value, err = tx.Get(key)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		err = fmt.Errorf("%w: %s", ErrNotFound, key)
	} else if err != nil {
		err = fmt.Errorf("reading parameter %s: %w", key, err)
	}
	return
}

func (s *BuntStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("storing parameter %s: %w", key, err)
	}
	return nil
}

func (s *BuntStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("*", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

func (s *BuntStore) Close() error {
	err := s.db.Close()
	if errors.Is(err, buntdb.ErrDatabaseClosed) {
		return nil
	}
	return err
}
