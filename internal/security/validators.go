package security

import (
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// matrixUserIDPattern はMatrixユーザーID（@localpart:domain）の形式。
// localpartに使用可能な文字: a-z, 0-9, ., _, =, -, /
var matrixUserIDPattern = regexp.MustCompile(`^@[a-zA-Z0-9._=\-/]+:[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// homeserverDomainPattern はドメイン名の基本形式。
var homeserverDomainPattern = regexp.MustCompile(`^[a-zA-Z0-9]+([-.][a-zA-Z0-9]+)*\.[a-zA-Z]{2,}$`)

// IsValidMatrixUserID はMatrixユーザーIDの形式チェックを行う。
// 認証済みデータの形式異常を警告ログに残すための助言的チェックであり、
// falseでも表示をブロックしてはならない。
func IsValidMatrixUserID(userID string) bool {
	return matrixUserIDPattern.MatchString(userID)
}

// IsValidHomeserverDomain はホームサーバードメインの形式チェックを行う。
// 形式に加えてICANN管理下のパブリックサフィックスを持つかを確認する。
// 観測用の助言的なチェックであり、falseでも接続処理をブロックしてはならない。
// 内部ホスト名やポート付きドメインも正当な接続先でありうる。
func IsValidHomeserverDomain(domain string) bool {
	if !homeserverDomainPattern.MatchString(domain) {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(strings.ToLower(domain))
	return icann && suffix != ""
}
