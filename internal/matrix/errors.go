package matrix

import (
	"encoding/json"
	"fmt"
)

// RespError はMatrix標準のエラーレスポンス（errcode/error）を表す。
// ユーザー表示前には必ずsanitizeTextを通すこと（サーバー制御の文字列を含む）。
type RespError struct {
	ErrCode    string `json:"errcode"`
	Err        string `json:"error"`
	StatusCode int    `json:"-"`
}

// Error はerrorインターフェースを実装する。
func (e *RespError) Error() string {
	if e.Err != "" {
		return e.Err
	}
	if e.ErrCode != "" {
		return e.ErrCode
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// parseRespError は非成功レスポンスのボディをRespErrorとして解釈する。
// 構造化エラーでないボディでもステータスコードを保持したRespErrorを返す。
func parseRespError(statusCode int, body []byte) *RespError {
	respErr := &RespError{StatusCode: statusCode}
	// デコード失敗は無視する。壊れたエラーボディでも呼び出し元には
	// ステータスコード付きのエラーが渡る。
	_ = json.Unmarshal(body, respErr)
	return respErr
}
