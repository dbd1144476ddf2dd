// Package settings persists the few user preferences that must survive
// restarts, currently the chosen save directory.
package settings

import (
	"log/slog"

	"github.com/smartvideo/ytdlp-bridge/bridge/config"
	bolt "go.etcd.io/bbolt"
)

var (
	bucket     = []byte("settings")
	keySaveDir = []byte("save_dir")
)

type Store struct {
	db *bolt.DB
}

func NewStore(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// SaveDir returns the persisted save directory, falling back to the
// configured default download path.
func (s *Store) SaveDir() string {
	var dir string

	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get(keySaveDir); v != nil {
			dir = string(v)
		}
		return nil
	})

	if dir == "" {
		return config.Instance().Paths.DownloadPath
	}
	return dir
}

func (s *Store) SetSaveDir(dir string) error {
	slog.Info("persisting save directory", slog.String("dir", dir))

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(keySaveDir, []byte(dir))
	})
}
