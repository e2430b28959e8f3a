package store

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Manager はストアファイルのオープンをメモ化する。
// 同一ファイルへの並行オープン要求は単一のオープン処理に収束し、
// 全呼び出し元が同じ*Storeインスタンスを受け取る。
type Manager struct {
	dir    string
	logger *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager はManagerを生成する。dirは全ストアファイルの親ディレクトリ。
func NewManager(dir string, logger *slog.Logger) *Manager {
	return &Manager{
		dir:    dir,
		logger: logger,
		stores: make(map[string]*Store),
	}
}

// GetStore は指定ファイル名のストアを返す。未オープンなら開く。
// オープン失敗はキャッシュされず、次回の呼び出しで再試行される。
func (m *Manager) GetStore(fileName string) (*Store, error) {
	m.mu.Lock()
	if s, ok := m.stores[fileName]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(fileName, func() (any, error) {
		m.mu.Lock()
		if s, ok := m.stores[fileName]; ok {
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		s, err := Open(m.dir, fileName)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.stores[fileName] = s
		m.mu.Unlock()

		m.logger.Info("ストアファイルを開きました", slog.String("file", fileName))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// CloseAll は開いている全ストアを閉じる。シャットダウン時に呼ぶ。
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, s := range m.stores {
		if err := s.Close(); err != nil {
			m.logger.Warn("ストアのクローズに失敗しました",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
		}
		delete(m.stores, name)
	}
}
