package worker

import (
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
)

// preferredTargets は改善の中心になるファイル群。
// 実在するものが候補リストの先頭に並ぶ。
var preferredTargets = []string{
	"internal/application/worker/worker.go",
	"internal/application/worker/patchgen.go",
	"internal/application/orchestrator/patch_validator.go",
	"internal/application/orchestrator/autoapply.go",
	"internal/infrastructure/sandbox/validator.go",
	"internal/infrastructure/gitrepo/recorder.go",
	"internal/adapter/config/config.go",
}

// pickCandidate は改善対象ファイルをランダムに1つ選ぶ
func (w *Worker) pickCandidate() (string, bool) {
	candidates := w.scanCandidates()
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// scanCandidates はルート配下の対象ファイルを列挙する。
// 優先ターゲットを先頭に置き、除外ディレクトリ配下と
// 対象外拡張子を除いてMaxCandidates件まで集める
func (w *Worker) scanCandidates() []string {
	seen := make(map[string]bool)
	var out []string

	for _, rel := range preferredTargets {
		if seen[rel] {
			continue
		}
		if _, err := os.Stat(filepath.Join(w.opts.Root, filepath.FromSlash(rel))); err == nil {
			seen[rel] = true
			out = append(out, rel)
		}
	}

	exclude := make(map[string]bool, len(w.opts.ExcludeDirs))
	for _, dir := range w.opts.ExcludeDirs {
		exclude[dir] = true
	}

	filepath.WalkDir(w.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != w.opts.Root && exclude[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if w.opts.MaxCandidates > 0 && len(out) >= w.opts.MaxCandidates {
			return fs.SkipAll
		}
		if !w.isCandidateExt(filepath.Ext(d.Name())) {
			return nil
		}
		rel, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if seen[rel] {
			return nil
		}
		seen[rel] = true
		out = append(out, rel)
		return nil
	})

	return out
}

func (w *Worker) isCandidateExt(ext string) bool {
	for _, e := range w.opts.CandidateExts {
		if e == ext {
			return true
		}
	}
	return false
}
