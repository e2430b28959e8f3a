// Package store はbboltによる組み込みKey-Value永続化を提供する。
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// openTimeout はデータベースファイルのロック取得待ちの上限。
// 別プロセスがファイルを掴んでいる場合に無限に待たないため。
const openTimeout = 5 * time.Second

// defaultBucket は単一バケット運用でのバケット名。
var defaultBucket = []byte("kv")

// Store は単一のbboltファイルに対するKey-Valueストア。
// 値はバイト列として保存され、シリアライズは呼び出し側の責任。
type Store struct {
	db       *bolt.DB
	fileName string
}

// Open は指定ディレクトリ配下のデータベースファイルを開く。
// ファイルと親ディレクトリが存在しない場合は作成する。
func Open(dir, fileName string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dir, fileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", fileName, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store %s: %w", fileName, err)
	}

	return &Store{db: db, fileName: fileName}, nil
}

// FileName はこのストアのファイル名を返す。
func (s *Store) FileName() string {
	return s.fileName
}

// Set は指定キーに値を保存する。
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(defaultBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Get は指定キーの値を取得する。キーが存在しない場合は(nil, nil)を返す。
func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(defaultBucket).Get([]byte(key))
		if v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Delete は指定キーを削除する。キーが存在しない場合もエラーにならない。
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(defaultBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Has は指定キーが存在するかを返す。
func (s *Store) Has(key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(defaultBucket).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check key %s: %w", key, err)
	}
	return found, nil
}

// Close はデータベースファイルを閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}
