// Package model はドメインモデルを定義する。
package model

// Session は認証済みアイデンティティを表すクレデンシャルタプル。
// 5つのフィールドは常に揃って存在する。部分的なSessionは永続化されない。
type Session struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
	DeviceID    string `json:"deviceId"`
	HomeServer  string `json:"homeServer"`
	BaseURL     string `json:"baseUrl"`
}

// IsComplete は5フィールドすべてが設定されているかを返す。
// ストレージから読み込んだデータの完全性チェックに使用する。
func (s *Session) IsComplete() bool {
	return s.UserID != "" &&
		s.AccessToken != "" &&
		s.DeviceID != "" &&
		s.HomeServer != "" &&
		s.BaseURL != ""
}

// PendingAuth はホームサーバー検証とクレデンシャル入力の間の中間状態を表す。
// 検証成功時に生成され、ログイン成功またはフロー放棄時に破棄される。
type PendingAuth struct {
	// Homeserver はユーザーが入力したホームサーバー文字列（正規化前の可能性あり）。
	Homeserver string `json:"homeserver"`
	// BaseURL は検証で解決された実際の接続エンドポイント。
	BaseURL string `json:"baseUrl"`
}
