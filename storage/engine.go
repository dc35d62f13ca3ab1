// Package storage implements the keyed, ordered, atomically-committed
// record store backing a wallet's persisted state.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Options configures a new Engine.
type Options struct {
	// DataDir holds the LevelDB database directory (wallets.db).
	DataDir string
	// BackupDir holds rolling backups, named "{id}_{unix}.backup".
	BackupDir string
	// BackupCount is how many backups per id to retain. Zero disables
	// auto-backup.
	BackupCount int
	// Logger receives diagnostic messages, e.g. backup-prune failures.
	// Defaults to a null logger.
	Logger hclog.Logger
}

// Engine is a keyed, ordered record store with single-key get/put/remove,
// a listing of every stored id (ListIDs), and synced (durable) writes.
// Scans over a caller-supplied key prefix are not exposed. Records are
// opaque byte blobs; all encryption happens above this layer.
type Engine struct {
	db          *leveldb.DB
	backupDir   string
	backupCount int
	logger      hclog.Logger
}

// Open opens (creating if absent) the LevelDB-backed store at opts.DataDir.
func Open(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	db, err := leveldb.OpenFile(opts.DataDir, nil)
	if err != nil {
		return nil, newErr(IO, fmt.Sprintf("failed to open database at %s", opts.DataDir), err)
	}

	if opts.BackupCount > 0 {
		if err := os.MkdirAll(opts.BackupDir, 0o700); err != nil {
			db.Close()
			return nil, newErr(IO, fmt.Sprintf("failed to create backup dir %s", opts.BackupDir), err)
		}
	}

	return &Engine{
		db:          db,
		backupDir:   opts.BackupDir,
		backupCount: opts.BackupCount,
		logger:      opts.Logger.Named("storage"),
	}, nil
}

// Close releases the underlying database handle.
func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return newErr(IO, "failed to close database", err)
	}
	return nil
}

// SaveRecord inserts or replaces the record at id (an opaque caller-chosen
// key, e.g. "wallet:"+walletID), then flushes to disk. A
// reader concurrent with this write either observes the old record in its
// entirety or the new record in its entirety, never a partial write: a
// LevelDB Put with sync enabled commits to the write-ahead log before
// returning, and the prior value for id is only visible until that commit
// lands. If auto-backup is enabled, it additionally writes a timestamped
// backup and prunes older backups for id; backup failures are logged and
// do not fail the save.
func (e *Engine) SaveRecord(id string, data []byte) error {
	key := recordKey(id)
	if err := e.db.Put(key, data, &opt.WriteOptions{Sync: true}); err != nil {
		return newErr(IO, fmt.Sprintf("failed to save record %s", id), err)
	}

	if e.backupCount > 0 {
		if err := e.writeBackup(id, data); err != nil {
			e.logger.Warn("backup write failed", "id", id, "error", err)
		} else if err := e.pruneBackups(id); err != nil {
			e.logger.Warn("backup prune failed", "id", id, "error", err)
		}
	}

	return nil
}

// LoadRecord returns the bytes stored at id, or a NotFound error.
func (e *Engine) LoadRecord(id string) ([]byte, error) {
	data, err := e.db.Get(recordKey(id), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, newErr(NotFound, fmt.Sprintf("record %s not found", id), nil)
		}
		return nil, newErr(IO, fmt.Sprintf("failed to load record %s", id), err)
	}
	return data, nil
}

// Exists is a cheap containment check for id.
func (e *Engine) Exists(id string) (bool, error) {
	ok, err := e.db.Has(recordKey(id), nil)
	if err != nil {
		return false, newErr(IO, fmt.Sprintf("failed to check record %s", id), err)
	}
	return ok, nil
}

// Delete removes the record at id and flushes.
func (e *Engine) Delete(id string) error {
	if err := e.db.Delete(recordKey(id), &opt.WriteOptions{Sync: true}); err != nil {
		return newErr(IO, fmt.Sprintf("failed to delete record %s", id), err)
	}
	return nil
}

// ListIDs returns every stored record id.
func (e *Engine) ListIDs() ([]string, error) {
	prefix := []byte(recordPrefix)
	iter := e.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var ids []string
	for iter.Next() {
		ids = append(ids, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, newErr(IO, "failed to iterate records", err)
	}
	return ids, nil
}

// recordPrefix namespaces the key space LevelDB sees so ListIDs can scan
// only storage-engine records, not any future internal bookkeeping keys.
const recordPrefix = "rec/"

func recordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

func (e *Engine) writeBackup(id string, data []byte) error {
	name := fmt.Sprintf("%s_%d.backup", id, time.Now().Unix())
	path := filepath.Join(e.backupDir, name)
	return os.WriteFile(path, data, 0o600)
}

// pruneBackups keeps only the backupCount most recent backups (by mtime)
// for id, removing the rest. Best-effort: a failure to remove an old
// backup does not fail the save.
func (e *Engine) pruneBackups(id string) error {
	entries, err := os.ReadDir(e.backupDir)
	if err != nil {
		return err
	}

	prefix := id + "_"
	type backupFile struct {
		path    string
		modTime time.Time
	}
	var backups []backupFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{
			path:    filepath.Join(e.backupDir, name),
			modTime: info.ModTime(),
		})
	}

	if len(backups) <= e.backupCount {
		return nil
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.After(backups[j].modTime)
	})

	var firstErr error
	for _, b := range backups[e.backupCount:] {
		if err := os.Remove(b.path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
