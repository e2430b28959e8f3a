// Package homeserver はホームサーバーの正規化・検証ロジックを提供する。
// ユーザーが入力したサーバーアドレスをディスカバリ文書で検証し、
// 実際の接続エンドポイントを解決する。
package homeserver

import (
	"regexp"
	"strings"
)

// schemePattern は先頭のhttp://またはhttps://にマッチする。
var schemePattern = regexp.MustCompile(`^https?://`)

// Normalize はユーザー入力のホームサーバーアドレスを正規化する。
// 前後の空白を除去し、スキームがない場合はhttps://を前置する。
// 末尾のスラッシュは加工しない。入力をそのまま尊重する（呼び出し元が
// 実際に試行したアドレスを表示できるよう、失敗時も正規化結果を返す）。
func Normalize(input string) string {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return "https://" + trimmed
	}
	return trimmed
}

// ExtractDomain はURLから先頭のスキームを1つだけ取り除き、素のドメイン文字列を返す。
// 完全修飾ユーザー名（@local:domain）の組み立てに使用する。
// 文字列操作のみで検証は行わない。
func ExtractDomain(homeserverURL string) string {
	return schemePattern.ReplaceAllString(homeserverURL, "")
}
