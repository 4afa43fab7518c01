package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "graph.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTemp(t)

	err := s.View(func(tx *Txn) error {
		for _, tbl := range Tables {
			n, err := tx.Count(tbl)
			require.NoError(t, err, "table %s", tbl)
			assert.Zero(t, n)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")

	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Update(func(tx *Txn) error {
		return tx.Put(TableNodes, []byte("k"), []byte("v"))
	}))
	require.NoError(t, s.Close())

	s, err = Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()

	err = s.View(func(tx *Txn) error {
		v, found, err := tx.Get(TableNodes, []byte("k"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("v"), v)
		return nil
	})
	require.NoError(t, err)
}

func TestOpen_SchemaMismatch(t *testing.T) {
	t.Run("version_bump", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graph.db")
		s, err := Open(path, Options{})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		// Tamper with the recorded format version.
		db, err := bolt.Open(path, 0o600, nil)
		require.NoError(t, err)
		require.NoError(t, db.Update(func(btx *bolt.Tx) error {
			return btx.Bucket([]byte(metaTable)).Put(metaVersionKey, []byte{99})
		}))
		require.NoError(t, db.Close())

		_, err = Open(path, Options{})
		var schemaErr *SchemaError
		assert.ErrorAs(t, err, &schemaErr)
	})

	t.Run("missing_table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graph.db")
		s, err := Open(path, Options{})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		db, err := bolt.Open(path, 0o600, nil)
		require.NoError(t, err)
		require.NoError(t, db.Update(func(btx *bolt.Tx) error {
			return btx.DeleteBucket([]byte(TableProps))
		}))
		require.NoError(t, db.Close())

		_, err = Open(path, Options{})
		var schemaErr *SchemaError
		assert.ErrorAs(t, err, &schemaErr)
	})

	t.Run("foreign_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graph.db")
		db, err := bolt.Open(path, 0o600, nil)
		require.NoError(t, err)
		require.NoError(t, db.Update(func(btx *bolt.Tx) error {
			_, err := btx.CreateBucket([]byte(TableNodes))
			return err
		}))
		require.NoError(t, db.Close())

		_, err = Open(path, Options{})
		var schemaErr *SchemaError
		assert.ErrorAs(t, err, &schemaErr)
	})
}

func TestTxn_Atomicity(t *testing.T) {
	s := openTemp(t)

	wantErr := assert.AnError
	err := s.Update(func(tx *Txn) error {
		require.NoError(t, tx.Put(TableNodes, []byte("a"), []byte("1")))
		require.NoError(t, tx.Put(TableLabels, []byte("b"), []byte("2")))
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	err = s.View(func(tx *Txn) error {
		_, found, err := tx.Get(TableNodes, []byte("a"))
		require.NoError(t, err)
		assert.False(t, found)
		_, found, err = tx.Get(TableLabels, []byte("b"))
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestTxn_CountSeesPendingWrites(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Update(func(tx *Txn) error {
		require.NoError(t, tx.Put(TableNodes, []byte("a"), []byte("1")))
		require.NoError(t, tx.Put(TableNodes, []byte("b"), []byte("2")))

		n, err := tx.Count(TableNodes)
		require.NoError(t, err)
		assert.Equal(t, 2, n, "count inside the writing transaction")

		require.NoError(t, tx.Delete(TableNodes, []byte("a")))
		n, err = tx.Count(TableNodes)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))

	require.NoError(t, s.View(func(tx *Txn) error {
		n, err := tx.Count(TableNodes)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "count after commit")
		return nil
	}))
}

func TestTxn_SingleWriterBlocks(t *testing.T) {
	s := openTemp(t)

	w1, err := s.Begin(true)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		w2, err := s.Begin(true)
		assert.NoError(t, err)
		close(acquired)
		_ = w2.Rollback()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer started while first was active")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, w1.Rollback())

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second writer never started after first finished")
	}
}

func TestTxn_SnapshotIsolation(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Update(func(tx *Txn) error {
		return tx.Put(TableNodes, []byte("stable"), []byte("old"))
	}))

	reader, err := s.Begin(false)
	require.NoError(t, err)
	defer reader.Rollback()

	require.NoError(t, s.Update(func(tx *Txn) error {
		if err := tx.Put(TableNodes, []byte("stable"), []byte("new")); err != nil {
			return err
		}
		return tx.Put(TableNodes, []byte("added"), []byte("x"))
	}))

	// The pinned snapshot sees neither the overwrite nor the addition.
	v, found, err := reader.Get(TableNodes, []byte("stable"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("old"), v)

	_, found, err = reader.Get(TableNodes, []byte("added"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTxn_CommitDoesNotBlockOnReaders(t *testing.T) {
	s := openTemp(t)

	reader, err := s.Begin(false)
	require.NoError(t, err)
	defer reader.Rollback()

	// A batch big enough to force page allocation must still commit
	// while the read transaction stays open.
	committed := make(chan error, 1)
	go func() {
		committed <- s.Update(func(tx *Txn) error {
			val := make([]byte, 4096)
			for i := 0; i < 1000; i++ {
				if err := tx.Put(TableNodes, []byte(fmt.Sprintf("key-%04d", i)), val); err != nil {
					return err
				}
			}
			return nil
		})
	}()

	select {
	case err := <-committed:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("writer commit blocked behind an open reader")
	}

	n, err := reader.Count(TableNodes)
	require.NoError(t, err)
	assert.Zero(t, n, "pinned snapshot predates the batch")
}

func TestTxn_UseAfterClose(t *testing.T) {
	s := openTemp(t)

	tx, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, _, err = tx.Get(TableNodes, []byte("k"))
	assert.ErrorIs(t, err, ErrTxClosed)
	assert.ErrorIs(t, tx.Put(TableNodes, []byte("k"), nil), ErrTxClosed)
	assert.ErrorIs(t, tx.Commit(), ErrTxClosed)
	assert.NoError(t, tx.Rollback()) // rollback after end is a no-op
}

func TestCursor_PrefixScan(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Update(func(tx *Txn) error {
		pairs := map[string]string{
			"aa:1": "1", "aa:2": "2", "ab:1": "3", "b:1": "4",
		}
		for k, v := range pairs {
			if err := tx.Put(TableLabels, []byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	}))

	err := s.View(func(tx *Txn) error {
		var keys []string
		require.NoError(t, tx.Scan(TableLabels, []byte("aa:"), func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		}))
		assert.Equal(t, []string{"aa:1", "aa:2"}, keys)

		// Full-table scan.
		n := 0
		require.NoError(t, tx.Scan(TableLabels, nil, func(_, _ []byte) error {
			n++
			return nil
		}))
		assert.Equal(t, 4, n)
		return nil
	})
	require.NoError(t, err)
}

func TestCursor_LazyAfterTxnEnd(t *testing.T) {
	s := openTemp(t)

	tx, err := s.Begin(false)
	require.NoError(t, err)
	c, err := tx.Cursor(TableNodes, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, _, err = c.Next()
	assert.ErrorIs(t, err, ErrTxClosed)
}

func TestOpen_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ro, err := Open(path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	err = ro.View(func(tx *Txn) error {
		assert.False(t, tx.Writable())
		return nil
	})
	require.NoError(t, err)
}
