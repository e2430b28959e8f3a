// Package state は認証とテーマのインメモリ状態機械を提供する。
package state

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/kaiwa/internal/matrix"
	"github.com/hitoshi/kaiwa/internal/model"
)

// ClientHandle は認証済みクライアントと同期ループのペア。
// 常にまとめて差し替えられ、片方だけが更新されることはない。
type ClientHandle struct {
	Client *matrix.Client
	Syncer *matrix.Syncer
}

// SessionLoader は起動時の状態復元に必要なストレージ読み取り。
type SessionLoader interface {
	Load() *model.Session
}

// PendingLoader は退避済み中間状態の読み取り。
type PendingLoader interface {
	Load() *model.PendingAuth
}

// AuthState は認証状態のミューテックス保護されたホルダー。
// 永続化は行わない。ストレージへの書き込みは呼び出し元の責任。
type AuthState struct {
	logger *slog.Logger

	mu            sync.Mutex
	generation    uint64
	initialized   bool
	loading       bool
	authenticated bool
	session       *model.Session
	pending       *model.PendingAuth
	handle        *ClientHandle
}

// NewAuthState はAuthStateを生成する。
func NewAuthState(logger *slog.Logger) *AuthState {
	return &AuthState{logger: logger}
}

// Initialize は永続化済みセッションから状態を復元する。
// 実行中に後続のInitializeが開始された場合、先行呼び出しの結果は破棄され、
// 最後に開始された呼び出しの結果だけが状態に反映される。
func (a *AuthState) Initialize(sessions SessionLoader, pendings PendingLoader) {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	a.loading = true
	a.mu.Unlock()

	session := sessions.Load()
	var pending *model.PendingAuth
	if pendings != nil {
		pending = pendings.Load()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		a.logger.Debug("古い初期化結果を破棄します", slog.Uint64("generation", gen))
		return
	}

	a.session = session
	a.authenticated = session != nil
	if pending != nil {
		a.pending = pending
	}
	a.loading = false
	a.initialized = true

	a.logger.Info("認証状態を初期化しました",
		slog.Bool("authenticated", a.authenticated),
	)
}

// SetAuthData はセッションを無条件に設定する。永続化は行わない。
func (a *AuthState) SetAuthData(session *model.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = session
	a.authenticated = session != nil
}

// SetClient はクライアントハンドルを丸ごと差し替える。
// 旧ハンドルの同期ループ停止は呼び出し元が行う。
func (a *AuthState) SetClient(handle *ClientHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handle = handle
}

// SetPendingAuth は検証済み中間状態を設定する。nilで破棄。
func (a *AuthState) SetPendingAuth(pending *model.PendingAuth) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = pending
}

// ClearAuth は認証関連の状態を同期的にすべてリセットし、
// 破棄対象のクライアントハンドルを返す。呼び出し元は返されたハンドルの
// 同期ループ停止とストレージ削除を行う。ストレージ削除の失敗は
// インメモリのリセットを妨げない。
func (a *AuthState) ClearAuth() *ClientHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	handle := a.handle
	a.session = nil
	a.pending = nil
	a.handle = nil
	a.authenticated = false

	a.logger.Info("認証状態をクリアしました")
	return handle
}

// Session は現在のセッションを返す。未認証ならnil。
func (a *AuthState) Session() *model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// PendingAuth は現在の中間状態を返す。
func (a *AuthState) PendingAuth() *model.PendingAuth {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Client は現在のクライアントハンドルを返す。
func (a *AuthState) Client() *ClientHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

// IsAuthenticated は認証済みかを返す。
func (a *AuthState) IsAuthenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated
}

// IsInitialized は初期化済みかを返す。
func (a *AuthState) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// IsLoading は初期化が進行中かを返す。
func (a *AuthState) IsLoading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}
