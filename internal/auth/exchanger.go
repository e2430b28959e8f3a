// Package auth はクレデンシャル交換とセッションの有効化を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hitoshi/kaiwa/internal/matrix"
	"github.com/hitoshi/kaiwa/internal/metrics"
	"github.com/hitoshi/kaiwa/internal/model"
)

// loginFailedMessage はサーバーからメッセージを得られなかった失敗に使う汎用メッセージ。
// サーバーが構造化エラー（errcode/error）を返した場合はそのメッセージを優先する。
const loginFailedMessage = "Login failed. Please check your credentials."

// Credentials はログインフォームの入力値。
type Credentials struct {
	Username string
	Password string
}

// LoginResult はログイン試行の結果。Exchangeはエラーを返さず、
// 失敗は常にSuccess=falseとErrorメッセージで表現される。
type LoginResult struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken,omitempty"`
	UserID      string `json:"userId,omitempty"`
	DeviceID    string `json:"deviceId,omitempty"`
	HomeServer  string `json:"homeServer,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ClientFactory は接続先ごとのMatrixクライアント生成。
type ClientFactory interface {
	NewClient(baseURL string) *matrix.Client
}

// Exchanger はパスワードをアクセストークンに交換する。
type Exchanger struct {
	factory    ClientFactory
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	limiter    *rate.Limiter
	deviceName string
}

// NewExchanger はExchangerを生成する。
// ratePerMinとburstはログイン試行のレート制限を定める。
func NewExchanger(factory ClientFactory, logger *slog.Logger, collector metrics.MetricsCollector, ratePerMin float64, burst int, deviceName string) *Exchanger {
	return &Exchanger{
		factory:    factory,
		logger:     logger,
		metrics:    collector,
		limiter:    rate.NewLimiter(rate.Limit(ratePerMin/60), burst),
		deviceName: deviceName,
	}
}

// Exchange はクレデンシャルをホームサーバーへ送信し、結果を返す。
// いかなる失敗もGoのエラーとしては返さず、LoginResultに畳み込む。
func (e *Exchanger) Exchange(ctx context.Context, baseURL string, creds Credentials) *LoginResult {
	e.metrics.RecordLoginAttempt()

	if !e.limiter.Allow() {
		e.logger.Warn("ログイン試行がレート制限されました")
		e.metrics.RecordLoginFailure("rate_limited")
		return &LoginResult{Success: false, Error: loginFailedMessage}
	}

	if creds.Username == "" || creds.Password == "" {
		e.metrics.RecordLoginFailure("empty_credentials")
		return &LoginResult{Success: false, Error: loginFailedMessage}
	}

	client := e.factory.NewClient(baseURL)
	resp, err := client.LoginPassword(ctx, creds.Username, creds.Password, e.deviceName)
	if err != nil {
		e.logger.Warn("ログインに失敗しました", slog.String("error", err.Error()))
		// サーバーが構造化エラーを返した場合はそのメッセージを表面化する。
		// メッセージは未サニタイズのサーバー由来文字列であり、表示側で処理される。
		var respErr *matrix.RespError
		if errors.As(err, &respErr) && respErr.Err != "" {
			e.metrics.RecordLoginFailure("server_rejected")
			return &LoginResult{Success: false, Error: respErr.Err}
		}
		e.metrics.RecordLoginFailure("network")
		return &LoginResult{Success: false, Error: loginFailedMessage}
	}

	// 必須フィールドが欠けたレスポンスは成功として扱わない
	if resp.AccessToken == "" || resp.UserID == "" || resp.DeviceID == "" {
		e.logger.Warn("ログインレスポンスに必須フィールドがありません")
		e.metrics.RecordLoginFailure("incomplete_response")
		return &LoginResult{Success: false, Error: loginFailedMessage}
	}

	homeServer := resp.HomeServer
	if homeServer == "" {
		// home_serverは仕様上deprecatedで省略されうる。ユーザーIDのドメイン部から導出する
		homeServer = domainFromUserID(resp.UserID)
	}

	e.logger.Info("ログインに成功しました", slog.String("user_id", resp.UserID))
	e.metrics.RecordLoginSuccess()

	return &LoginResult{
		Success:     true,
		AccessToken: resp.AccessToken,
		UserID:      resp.UserID,
		DeviceID:    resp.DeviceID,
		HomeServer:  homeServer,
	}
}

// Session はログイン結果と接続先から完全なセッションを組み立てる。
// 失敗した結果に対してはnilを返す。
func (r *LoginResult) Session(baseURL string) *model.Session {
	if !r.Success {
		return nil
	}
	return &model.Session{
		UserID:      r.UserID,
		AccessToken: r.AccessToken,
		DeviceID:    r.DeviceID,
		HomeServer:  r.HomeServer,
		BaseURL:     baseURL,
	}
}

// domainFromUserID は"@local:domain"形式のユーザーIDからドメイン部を取り出す。
func domainFromUserID(userID string) string {
	if i := strings.Index(userID, ":"); i >= 0 {
		return userID[i+1:]
	}
	return ""
}
