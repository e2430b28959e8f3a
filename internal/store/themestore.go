package store

import (
	"encoding/json"
	"log/slog"

	"github.com/hitoshi/kaiwa/internal/model"
)

const (
	// settingsFileName はアプリ設定ストアのファイル名。
	settingsFileName = "settings.db"
	// themeKey はテーマ設定の保存キー。
	themeKey = "theme"
)

// themeRecord は永続化されるテーマ設定のJSON形式。
type themeRecord struct {
	Theme model.ThemeMode `json:"theme"`
}

// ThemeStorage はテーマ設定の永続化を担う。
// エラー方針はAuthStorageと同じ: 書き込みは原因付きで失敗、読み取りは「保存なし」に縮退。
type ThemeStorage struct {
	manager *Manager
	logger  *slog.Logger
}

// NewThemeStorage はThemeStorageを生成する。
func NewThemeStorage(manager *Manager, logger *slog.Logger) *ThemeStorage {
	return &ThemeStorage{manager: manager, logger: logger}
}

// Save はテーマ設定を保存する。失敗時は原因付きエラーを返す。
func (t *ThemeStorage) Save(mode model.ThemeMode) error {
	s, err := t.manager.GetStore(settingsFileName)
	if err != nil {
		return model.NewThemeSaveFailedError(err)
	}

	data, err := json.Marshal(themeRecord{Theme: mode})
	if err != nil {
		return model.NewThemeSaveFailedError(err)
	}

	if err := s.Set(themeKey, data); err != nil {
		return model.NewThemeSaveFailedError(err)
	}

	t.logger.Info("テーマ設定を保存しました", slog.String("theme", string(mode)))
	return nil
}

// Load は保存済みテーマ設定を読み込む。保存がない場合は("", false)を返す。
// 未定義のモード値は破損データと同様に「保存なし」として扱う。
func (t *ThemeStorage) Load() (model.ThemeMode, bool) {
	s, err := t.manager.GetStore(settingsFileName)
	if err != nil {
		t.logger.Warn("設定ストアのオープンに失敗しました", slog.String("error", err.Error()))
		return "", false
	}

	data, err := s.Get(themeKey)
	if err != nil {
		t.logger.Warn("テーマ設定の読み取りに失敗しました", slog.String("error", err.Error()))
		return "", false
	}
	if data == nil {
		return "", false
	}

	var rec themeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.logger.Warn("テーマ設定のパースに失敗しました", slog.String("error", err.Error()))
		return "", false
	}

	if !rec.Theme.IsValid() {
		t.logger.Warn("未知のテーマ設定を無視します", slog.String("theme", string(rec.Theme)))
		return "", false
	}

	return rec.Theme, true
}

// Clear は保存済みテーマ設定を削除する。失敗時は原因付きエラーを返す。
func (t *ThemeStorage) Clear() error {
	s, err := t.manager.GetStore(settingsFileName)
	if err != nil {
		return model.NewThemeClearFailedError(err)
	}

	if err := s.Delete(themeKey); err != nil {
		return model.NewThemeClearFailedError(err)
	}

	t.logger.Info("テーマ設定を削除しました")
	return nil
}
