package store

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hitoshi/kaiwa/internal/model"
)

// pendingFileName は中間状態の退避先ファイル名。
// プロセスを跨いで読み戻せるよう固定名にする。
const pendingFileName = "kaiwa-pending.json"

// PendingCache はホームサーバー検証とログインの間の中間状態を
// 一時ファイルに退避する。再起動後のプロセスが検証をやり直さずに
// 済むよう、ファイル名は固定とする。中間状態は失っても検証を
// やり直せば済むため、保存・読み取りともにベストエフォートで
// エラーを伝播しない。
type PendingCache struct {
	path   string
	logger *slog.Logger
}

// NewPendingCache はPendingCacheを生成する。dirは一時ファイルの置き場所。
func NewPendingCache(dir string, logger *slog.Logger) *PendingCache {
	return &PendingCache{
		path:   filepath.Join(dir, pendingFileName),
		logger: logger,
	}
}

// Save は中間状態を一時ファイルに書き込む。失敗しても処理は継続できる。
func (p *PendingCache) Save(pending *model.PendingAuth) {
	data, err := json.Marshal(pending)
	if err != nil {
		p.logger.Warn("中間状態のシリアライズに失敗しました", slog.String("error", err.Error()))
		return
	}

	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		p.logger.Warn("中間状態の書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// Load は退避済みの中間状態を読み込む。存在しない・読めない場合はnil。
func (p *PendingCache) Load() *model.PendingAuth {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Warn("中間状態の読み取りに失敗しました", slog.String("error", err.Error()))
		}
		return nil
	}

	var pending model.PendingAuth
	if err := json.Unmarshal(data, &pending); err != nil {
		p.logger.Warn("中間状態のパースに失敗しました", slog.String("error", err.Error()))
		return nil
	}

	return &pending
}

// Clear は一時ファイルを削除する。存在しない場合は何もしない。
func (p *PendingCache) Clear() {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("中間状態の削除に失敗しました", slog.String("error", err.Error()))
	}
}
