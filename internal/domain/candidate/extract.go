package candidate

import (
	"encoding/json"
	"strings"
)

// Extract はLLMの生テキストからパッチ候補を抽出。
// 応答全体がJSONの場合、コードフェンスで囲まれた場合、
// 前後に散文が付いた場合のいずれにも対応する。
// filesが空の候補は無効としてfalseを返す。
func Extract(text string) (*Candidate, bool) {
	text = stripFences(strings.TrimSpace(text))

	// 応答全体がJSONオブジェクトのケース
	if c := tryParse(text); c != nil {
		return c, true
	}

	// 散文に埋め込まれたJSONオブジェクトを波括弧の対応で走査。
	// 正規表現ではネストした files の内容（文字列中の括弧）を
	// 正しく扱えないため、深さカウントで抽出する。
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		span, ok := matchBrace(text[i:])
		if !ok {
			continue
		}
		if c := tryParse(span); c != nil {
			return c, true
		}
	}

	return nil, false
}

// stripFences は ```json ... ``` 形式のコードフェンスを除去
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		head := strings.TrimSpace(text[:idx])
		if head == "json" || head == "" {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// matchBrace は先頭の '{' に対応する '}' までの範囲を返す。
// JSON文字列リテラル内の括弧とエスケープを考慮する。
func matchBrace(text string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[:i+1], true
			}
		}
	}
	return "", false
}

func tryParse(text string) *Candidate {
	var c Candidate
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return nil
	}
	if len(c.Files) == 0 {
		return nil
	}
	return &c
}
