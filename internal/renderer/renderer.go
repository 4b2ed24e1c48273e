// Package renderer は {{name}} 形式のプレースホルダを持つテンプレートの置換と検証を提供する。
package renderer

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
)

// placeholderPattern は {{identifier}} を表す。identifierは英数字とアンダースコアのみ。
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Validation はテンプレート変数の事前検証結果。各スライスはソート済みで重複を含まない。
type Validation struct {
	Required []string `json:"required"`
	Provided []string `json:"provided"`
	Missing  []string `json:"missing"`
	IsValid  bool     `json:"is_valid"`
}

// Render はテンプレート中のプレースホルダを変数の文字列表現で置換する。
// 対応する変数がないプレースホルダはそのまま残す。完全性の検証は行わない。
func Render(body string, vars map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := vars[name]
		if !ok {
			return match
		}
		return Stringify(v)
	})
}

// Placeholders はテンプレート中のプレースホルダ名をソート済み・重複なしで返す。
func Placeholders(body string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		seen[m[1]] = struct{}{}
	}
	return sortedKeys(seen)
}

// Validate はテンプレートが要求する変数と与えられた変数を比較する。
func Validate(body string, vars map[string]any) Validation {
	required := Placeholders(body)

	provided := make(map[string]struct{}, len(vars))
	for k := range vars {
		provided[k] = struct{}{}
	}

	missing := []string{}
	for _, name := range required {
		if _, ok := provided[name]; !ok {
			missing = append(missing, name)
		}
	}

	return Validation{
		Required: required,
		Provided: sortedKeys(provided),
		Missing:  missing,
		IsValid:  len(missing) == 0,
	}
}

// Stringify は変数値の置換用文字列表現を返す。
// 文字列はそのまま、JSON由来の整数値のfloat64は小数点なし、その他はJSON表現にする。
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return Stringify(float64(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
