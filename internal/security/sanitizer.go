// Package security はアプリケーションのセキュリティ機能を提供する。
//
// Sanitizer はサーバー由来の文字列をUIに表示する前にサニタイズし、
// インジェクション攻撃からユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
// ConnectionGuard はユーザー入力URLへの接続を安全なHTTPクライアントで行う。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// defaultAllowedTags はSanitizeHTMLが許可する整形タグの既定リスト。
// これより広いリストを外部から指定することはできない（縮小のみ可能）。
var defaultAllowedTags = []string{
	"b", "i", "em", "strong", "u", "s", "strike",
	"p", "br", "span", "div",
	"ul", "ol", "li",
	"blockquote", "code", "pre",
	"h1", "h2", "h3", "h4", "h5", "h6",
	"a", "img",
}

// defaultAllowedAttrs はSanitizeHTMLが許可する属性の既定リスト。
var defaultAllowedAttrs = []string{"href", "src", "alt", "title", "class"}

// allowedURISchemes はhref/srcで許可するURIスキーム。
// mxcはMatrixのコンテンツアドレッシングスキーム。
// javascript:とdata:は許可リストに含めないことで無条件に拒否される。
var allowedURISchemes = []string{"http", "https", "mailto", "tel", "mxc"}

// HTMLOptions はSanitizeHTMLの許可リストを縮小するためのオプション。
// nilフィールドは既定リストをそのまま使用する。
// 既定リストに含まれない値を指定しても無視される（拡大は不可能）。
type HTMLOptions struct {
	AllowedTags  []string
	AllowedAttrs []string
}

// Sanitizer はサーバー由来文字列のサニタイズ機能を提供する。
// 両メソッドは純粋・全域（パニックしない）・冪等である。
type Sanitizer struct {
	textPolicy *bluemonday.Policy
	htmlPolicy *bluemonday.Policy
}

// NewSanitizer はSanitizerの新しいインスタンスを生成する。
// 初期化時にbluemondayのポリシーを構築する。
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		textPolicy: bluemonday.StrictPolicy(),
		htmlPolicy: buildHTMLPolicy(defaultAllowedTags, defaultAllowedAttrs),
	}
}

// SanitizeText はすべてのマークアップを除去してプレーンテキストを返す。
// エラーメッセージやユーザー識別子など「サーバー由来・テキストとして表示」の
// 信頼レベルの値すべてに使用する。出力に<や>の文字が残ることはない。
func (s *Sanitizer) SanitizeText(text string) string {
	return s.textPolicy.Sanitize(text)
}

// SanitizeHTML は許可リストに基づいて整形タグのみを残したHTMLを返す。
// optionsで許可リストを縮小できる。安全側を超えた拡大はできない。
func (s *Sanitizer) SanitizeHTML(html string, options *HTMLOptions) string {
	if options == nil {
		return s.htmlPolicy.Sanitize(html)
	}

	tags := intersect(defaultAllowedTags, options.AllowedTags)
	attrs := intersect(defaultAllowedAttrs, options.AllowedAttrs)
	return buildHTMLPolicy(tags, attrs).Sanitize(html)
}

// buildHTMLPolicy は指定の許可リストからbluemondayポリシーを構築する。
func buildHTMLPolicy(tags, attrs []string) *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(tags...)
	if len(attrs) > 0 {
		p.AllowAttrs(attrs...).Globally()
	}

	// href/srcのスキームは許可リストで制限する。
	// 相対URLは不許可（サーバー由来コンテンツには不適切）。
	p.AllowURLSchemes(allowedURISchemes...)
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)

	return p
}

// intersect はbaseに含まれるrequestedの要素のみを返す。
// requestedがnilの場合はbaseをそのまま返す。
func intersect(base, requested []string) []string {
	if requested == nil {
		return base
	}
	allowed := make(map[string]bool, len(base))
	for _, v := range base {
		allowed[v] = true
	}
	var result []string
	for _, v := range requested {
		if allowed[v] {
			result = append(result, v)
		}
	}
	return result
}
