package homeserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// wellKnownPath はクライアントディスカバリ文書のパス。
const wellKnownPath = "/.well-known/matrix/client"

// ユーザーに表示する検証エラー文言。
// 表示経路では必ずsanitizeTextを通すこと。
const (
	errCannotConnect      = "Cannot connect to homeserver"
	errInvalidResponse    = "Invalid homeserver response"
	errVerificationFailed = "Verification failed"
)

// VerificationResult はホームサーバー検証の結果を表す。
// 失敗時もNormalizedURLは常に設定される（実際に試行したアドレスの表示用）。
type VerificationResult struct {
	IsValid       bool
	BaseURL       string
	NormalizedURL string
	Error         string
}

// MetricsRecorder は検証メトリクスの記録インターフェース。
// internal/metricsのCollectorを抽象化してテスタビリティを向上させる。
type MetricsRecorder interface {
	RecordVerify(success bool, duration time.Duration)
}

// Verifier はホームサーバーのディスカバリ検証機能を提供する。
type Verifier struct {
	httpClient  *http.Client
	logger      *slog.Logger
	maxBodySize int64
	metrics     MetricsRecorder
}

// NewVerifier はVerifierの新しいインスタンスを生成する。
// httpClientにはsecurity.ConnectionGuardServiceが生成した保護付きクライアントを渡す。
// metricsはnil可。
func NewVerifier(httpClient *http.Client, logger *slog.Logger, maxBodySize int64, metrics MetricsRecorder) *Verifier {
	return &Verifier{
		httpClient:  httpClient,
		logger:      logger,
		maxBodySize: maxBodySize,
		metrics:     metrics,
	}
}

// wellKnownDoc はディスカバリ文書のうち必要な部分のみを表す。
type wellKnownDoc struct {
	Homeserver struct {
		BaseURL string `json:"base_url"`
	} `json:"m.homeserver"`
}

// Verify はホームサーバーアドレスを正規化し、ディスカバリ文書で検証する。
// ネットワーク呼び出し以外の副作用はない。Goのエラーは返さず、
// 結果オブジェクトが常に成否とエラー文言を運ぶ。
func (v *Verifier) Verify(ctx context.Context, input string) VerificationResult {
	normalized := Normalize(input)
	start := time.Now()

	result := v.verify(ctx, normalized)

	if v.metrics != nil {
		v.metrics.RecordVerify(result.IsValid, time.Since(start))
	}
	return result
}

func (v *Verifier) verify(ctx context.Context, normalized string) VerificationResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized+wellKnownPath, nil)
	if err != nil {
		return v.failure(normalized, errorMessage(err))
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Warn("ディスカバリ要求に失敗しました",
			slog.String("url", normalized),
			slog.String("error", err.Error()),
		)
		return v.failure(normalized, errCannotConnect)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		v.logger.Warn("ディスカバリ要求がエラーステータスを返しました",
			slog.String("url", normalized),
			slog.Int("http_status", resp.StatusCode),
		)
		return v.failure(normalized, errCannotConnect)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, v.maxBodySize))
	if err != nil {
		return v.failure(normalized, errorMessage(err))
	}

	var doc wellKnownDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return v.failure(normalized, errorMessage(err))
	}

	if doc.Homeserver.BaseURL == "" {
		v.logger.Warn("ディスカバリ文書にbase_urlがありません",
			slog.String("url", normalized),
		)
		return v.failure(normalized, errInvalidResponse)
	}

	v.logger.Info("ホームサーバーを検証しました",
		slog.String("normalized_url", normalized),
		slog.String("base_url", doc.Homeserver.BaseURL),
	)

	return VerificationResult{
		IsValid:       true,
		BaseURL:       doc.Homeserver.BaseURL,
		NormalizedURL: normalized,
	}
}

func (v *Verifier) failure(normalized, message string) VerificationResult {
	return VerificationResult{
		IsValid:       false,
		NormalizedURL: normalized,
		Error:         message,
	}
}

// errorMessage はエラーからユーザー表示用の文言を取り出す。
// メッセージが空の場合は汎用文言にフォールバックする。
func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return errVerificationFailed
	}
	return err.Error()
}
