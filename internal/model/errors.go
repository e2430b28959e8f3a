package model

import "fmt"

// AppError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type AppError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, storage, theme, validation
	Action   string // ユーザー向け対処方法
	Cause    error  // 元のエラー（永続化エラーでは必須）
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap はerrors.Is/Asのために元のエラーを返す。
func (e *AppError) Unwrap() error {
	return e.Cause
}

// 定義済みエラーコード
const (
	ErrCodeAuthSaveFailed   = "AUTH_SAVE_FAILED"
	ErrCodeAuthClearFailed  = "AUTH_CLEAR_FAILED"
	ErrCodeThemeSaveFailed  = "THEME_SAVE_FAILED"
	ErrCodeThemeClearFailed = "THEME_CLEAR_FAILED"
	ErrCodeStoreOpenFailed  = "STORE_OPEN_FAILED"
	ErrCodeClientSyncFailed = "CLIENT_SYNC_FAILED"
)

// NewAuthSaveFailedError は認証情報の保存失敗エラーを生成する。
// 書き込み失敗は呼び出し元へ必ず伝播する（サイレントな書き込み消失は危険）。
func NewAuthSaveFailedError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeAuthSaveFailed,
		Message:  "認証情報の保存に失敗しました。",
		Category: "storage",
		Action:   "ディスクの空き容量と書き込み権限を確認してください。",
		Cause:    cause,
	}
}

// NewAuthClearFailedError は認証情報の削除失敗エラーを生成する。
func NewAuthClearFailedError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeAuthClearFailed,
		Message:  "認証情報の削除に失敗しました。",
		Category: "storage",
		Action:   "ディスクの書き込み権限を確認してください。",
		Cause:    cause,
	}
}

// NewThemeSaveFailedError はテーマ設定の保存失敗エラーを生成する。
func NewThemeSaveFailedError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeThemeSaveFailed,
		Message:  "テーマ設定の保存に失敗しました。",
		Category: "storage",
		Action:   "ディスクの空き容量と書き込み権限を確認してください。",
		Cause:    cause,
	}
}

// NewThemeClearFailedError はテーマ設定の削除失敗エラーを生成する。
func NewThemeClearFailedError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeThemeClearFailed,
		Message:  "テーマ設定の削除に失敗しました。",
		Category: "storage",
		Action:   "ディスクの書き込み権限を確認してください。",
		Cause:    cause,
	}
}

// NewStoreOpenFailedError はストアファイルのオープン失敗エラーを生成する。
func NewStoreOpenFailedError(fileName string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeStoreOpenFailed,
		Message:  fmt.Sprintf("ストアファイルを開けませんでした: %s", fileName),
		Category: "storage",
		Action:   "データディレクトリのパスと権限を確認してください。",
		Cause:    cause,
	}
}

// NewClientSyncFailedError は同期ループの開始失敗エラーを生成する。
func NewClientSyncFailedError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeClientSyncFailed,
		Message:  "ホームサーバーとの同期を開始できませんでした。",
		Category: "auth",
		Action:   "ネットワーク接続を確認し、再度ログインしてください。",
		Cause:    cause,
	}
}
