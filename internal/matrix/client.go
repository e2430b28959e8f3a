// Package matrix はMatrixクライアント・サーバーAPIの呼び出しを提供する。
// パスワードログイン、ログアウト、トークン検証、同期ループを含む。
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	loginPath  = "/_matrix/client/v3/login"
	logoutPath = "/_matrix/client/v3/logout"
	whoamiPath = "/_matrix/client/v3/account/whoami"
	syncPath   = "/_matrix/client/v3/sync"

	// loginTypePassword はパスワードログインのタイプタグ。
	loginTypePassword = "m.login.password"

	// maxResponseSize はAPIレスポンスボディの読み取り上限。
	maxResponseSize = 1 << 20

	userAgent = "Kaiwa/1.0 Matrix Client"
)

// Client はMatrixクライアント・サーバーAPIのクライアント。
// 未認証（ログイン前）と認証済みの両方の状態で使用される。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	baseURL     string
	accessToken string
	userID      string
}

// NewClient は未認証のClientを生成する。ログイン操作に使用する。
// baseURLには.well-known検証で解決済みのエンドポイントを渡す。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// NewAuthenticatedClient は永続化済みSessionから認証済みClientを生成する。
func NewAuthenticatedClient(httpClient *http.Client, logger *slog.Logger, baseURL, accessToken, userID string) *Client {
	c := NewClient(httpClient, logger, baseURL)
	c.accessToken = accessToken
	c.userID = userID
	return c
}

// BaseURL は接続先エンドポイントを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UserID は認証済みユーザーIDを返す。未認証の場合は空文字列。
func (c *Client) UserID() string {
	return c.userID
}

// LoginResponse はパスワードログインのレスポンスを表す。
// home_serverは古いフィールドでサーバーによっては省略される。
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
	HomeServer  string `json:"home_server"`
}

// loginRequest はパスワードログインのリクエストボディ。
type loginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// LoginPassword はパスワードログインを実行する。
// userには完全修飾ユーザー名（@local:domain）を渡す。
// サーバーが構造化エラーを返した場合は*RespErrorを返す。
func (c *Client) LoginPassword(ctx context.Context, user, password, deviceName string) (*LoginResponse, error) {
	reqBody := loginRequest{
		Type:                     loginTypePassword,
		User:                     user,
		Password:                 password,
		InitialDeviceDisplayName: deviceName,
	}

	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, loginPath, &reqBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout はサーバー側のアクセストークンを無効化する。
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, logoutPath, struct{}{}, nil)
}

// WhoamiResponse はトークン検証のレスポンスを表す。
type WhoamiResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// Whoami はアクセストークンに紐づくユーザーIDを問い合わせる。
// 復元したSessionのトークンがまだ有効かの確認に使用する。
func (c *Client) Whoami(ctx context.Context) (*WhoamiResponse, error) {
	var resp WhoamiResponse
	if err := c.doJSON(ctx, http.MethodGet, whoamiPath, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doJSON はJSONリクエストを送信し、レスポンスをoutへデコードする。
// bodyがnilの場合はボディなし、outがnilの場合はレスポンスボディを読み捨てる。
// 非成功ステータスはRespErrorへのデコードを試み、エラーとして返す。
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseRespError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
