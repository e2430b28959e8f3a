package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/kaiwa/internal/matrix"
	"github.com/hitoshi/kaiwa/internal/model"
	"github.com/hitoshi/kaiwa/internal/state"
)

// AuthenticatedClientFactory はセッションから認証済みクライアントを生成する。
type AuthenticatedClientFactory interface {
	NewAuthenticatedClient(baseURL, accessToken, userID string) *matrix.Client
	NewSyncer(client *matrix.Client) *matrix.Syncer
}

// Activator はセッションから稼働中のクライアントハンドルを作る。
type Activator struct {
	factory AuthenticatedClientFactory
	logger  *slog.Logger
}

// NewActivator はActivatorを生成する。
func NewActivator(factory AuthenticatedClientFactory, logger *slog.Logger) *Activator {
	return &Activator{factory: factory, logger: logger}
}

// Activate は認証済みクライアントを生成し、同期ループを開始する。
// 同期に先立ってwhoamiでトークンの有効性を確認する。復元したセッションの
// トークンが失効していた場合はここで検出される。
// トークン確認または初回同期に失敗した場合はハンドルを残さずエラーを返す。
func (a *Activator) Activate(ctx context.Context, session *model.Session) (*state.ClientHandle, error) {
	client := a.factory.NewAuthenticatedClient(session.BaseURL, session.AccessToken, session.UserID)

	whoami, err := client.Whoami(ctx)
	if err != nil {
		a.logger.Warn("トークンの確認に失敗しました",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewClientSyncFailedError(err)
	}
	if whoami.UserID != session.UserID {
		a.logger.Warn("トークンが別のユーザーに紐づいています",
			slog.String("expected", session.UserID),
		)
	}

	syncer := a.factory.NewSyncer(client)

	if err := syncer.Start(ctx); err != nil {
		a.logger.Warn("クライアントの有効化に失敗しました",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewClientSyncFailedError(err)
	}

	a.logger.Info("クライアントを有効化しました", slog.String("user_id", session.UserID))
	return &state.ClientHandle{Client: client, Syncer: syncer}, nil
}

// Deactivate はベストエフォートでサーバー側のトークンを失効させたあと、
// 結果に関わらず同期ループを停止する。失効の失敗はログに残すだけで伝播しない。
func (a *Activator) Deactivate(ctx context.Context, handle *state.ClientHandle) {
	if handle == nil {
		return
	}

	if handle.Client != nil {
		if err := handle.Client.Logout(ctx); err != nil {
			a.logger.Warn("サーバー側のログアウトに失敗しました", slog.String("error", err.Error()))
		}
	}

	if handle.Syncer != nil {
		handle.Syncer.Stop()
	}
}
