package store

import (
	"encoding/json"
	"log/slog"

	"github.com/hitoshi/kaiwa/internal/model"
)

const (
	// authFileName は認証情報ストアのファイル名。
	authFileName = "auth.db"
	// credentialsKey はクレデンシャルタプルの保存キー。
	credentialsKey = "credentials"
)

// AuthStorage はクレデンシャルタプルの永続化を担う。
// 書き込み失敗は原因付きのAppErrorとして呼び出し元へ伝播する。
// 読み取り失敗は「保存なし」として扱い、エラーを返さない。
// 起動経路を読み取り障害で止めないための非対称なエラー方針。
type AuthStorage struct {
	manager *Manager
	logger  *slog.Logger
}

// NewAuthStorage はAuthStorageを生成する。
func NewAuthStorage(manager *Manager, logger *slog.Logger) *AuthStorage {
	return &AuthStorage{manager: manager, logger: logger}
}

// Save はセッションを保存する。失敗時は原因付きエラーを返す。
func (a *AuthStorage) Save(session *model.Session) error {
	s, err := a.manager.GetStore(authFileName)
	if err != nil {
		return model.NewAuthSaveFailedError(err)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return model.NewAuthSaveFailedError(err)
	}

	if err := s.Set(credentialsKey, data); err != nil {
		return model.NewAuthSaveFailedError(err)
	}

	a.logger.Info("認証情報を保存しました", slog.String("user_id", session.UserID))
	return nil
}

// Load は保存済みセッションを読み込む。保存がない場合はnilを返す。
// 破損データや不完全なタプルは警告ログを出して「保存なし」として扱う。
func (a *AuthStorage) Load() *model.Session {
	s, err := a.manager.GetStore(authFileName)
	if err != nil {
		a.logger.Warn("認証ストアのオープンに失敗しました", slog.String("error", err.Error()))
		return nil
	}

	data, err := s.Get(credentialsKey)
	if err != nil {
		a.logger.Warn("認証情報の読み取りに失敗しました", slog.String("error", err.Error()))
		return nil
	}
	if data == nil {
		return nil
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		a.logger.Warn("認証情報のパースに失敗しました", slog.String("error", err.Error()))
		return nil
	}

	// 不完全なタプルは存在しないものとして扱う
	if !session.IsComplete() {
		a.logger.Warn("不完全な認証情報を無視します")
		return nil
	}

	return &session
}

// Has は保存済みセッションが存在するかを返す。読み取り失敗時はfalse。
func (a *AuthStorage) Has() bool {
	return a.Load() != nil
}

// Clear は保存済みセッションを削除する。失敗時は原因付きエラーを返す。
func (a *AuthStorage) Clear() error {
	s, err := a.manager.GetStore(authFileName)
	if err != nil {
		return model.NewAuthClearFailedError(err)
	}

	if err := s.Delete(credentialsKey); err != nil {
		return model.NewAuthClearFailedError(err)
	}

	a.logger.Info("認証情報を削除しました")
	return nil
}
