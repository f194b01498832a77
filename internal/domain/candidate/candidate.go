package candidate

// Candidate はLLM応答から抽出したパッチ候補を表す値オブジェクト
type Candidate struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Files       map[string]string `json:"files"` // 相対パス → 完全なファイル内容
}
