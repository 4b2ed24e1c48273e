package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer はテンプレートから生成したHTML本文をサニタイズする。
// テンプレート本文と変数値はいずれも利用者の入力であり、生成物はダウンロードされて
// ブラウザで開かれるため、許可リストにある文書向けのタグと属性のみを残す。
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewHTMLSanitizer はHTMLSanitizerを生成する。
//   - 見出し、段落、リスト、表、引用、整形済みテキスト、強調の各タグを許可する
//   - script, style, iframe, form とすべてのon*属性は除去される
//   - aのhrefはhttps/mailtoのみ。target="_blank"とrel="noreferrer"を付与する
//   - imgのsrcはhttpsのみ
func NewHTMLSanitizer() *HTMLSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr", "div", "span",
		"ul", "ol", "li", "dl", "dt", "dd",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i", "u", "small", "sub", "sup",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
	)
	p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("th", "td")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "mailto")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")

	return &HTMLSanitizer{policy: p}
}

// Sanitize は許可リスト外の要素と属性を取り除いたHTMLを返す。
// 同じ入力には常に同じ出力を返す。
func (s *HTMLSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
