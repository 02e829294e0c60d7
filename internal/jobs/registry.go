package jobs

import (
	"os"
	"path/filepath"

	"recorte/internal/naming"
)

// Registry はディレクトリの走査でジョブの状態を推定する。
// ストアが知らないID（以前のデプロイで作られた成果物など）の補助に使う
type Registry struct {
	tempDir   string
	outputDir string
}

// NewRegistry は新しいRegistryを作成
func NewRegistry(tempDir, outputDir string) *Registry {
	return &Registry{tempDir: tempDir, outputDir: outputDir}
}

// Artifact は出力ディレクトリ内の成果物
type Artifact struct {
	Name string
	Path string
	Size int64
}

// FindArtifact はジョブIDに対応する成果物を探す
func (r *Registry) FindArtifact(jobID string) (*Artifact, bool) {
	entries, err := os.ReadDir(r.outputDir)
	if err != nil {
		return nil, false
	}
	for _, e := range entries {
		if e.IsDir() || !naming.IsArtifactOf(e.Name(), jobID) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		return &Artifact{
			Name: e.Name(),
			Path: filepath.Join(r.outputDir, e.Name()),
			Size: info.Size(),
		}, true
	}
	return nil, false
}

// Artifact は指定ファイル名の成果物を返す
func (r *Registry) Artifact(filename string) (*Artifact, bool) {
	if filename == "" || filepath.Base(filename) != filename {
		return nil, false
	}
	path := filepath.Join(r.outputDir, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return &Artifact{Name: filename, Path: path, Size: info.Size()}, true
}

// TempFiles はジョブIDの一時ファイル一覧を返す
func (r *Registry) TempFiles(jobID string) []string {
	entries, err := os.ReadDir(r.tempDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && naming.IsTempOf(e.Name(), jobID) {
			out = append(out, filepath.Join(r.tempDir, e.Name()))
		}
	}
	return out
}

// HasTemp は一時ファイルが存在すればtrue（処理中）
func (r *Registry) HasTemp(jobID string) bool {
	return len(r.TempFiles(jobID)) > 0
}

// RemoveTemp はジョブIDの一時ファイルを全て削除し、削除数を返す
func (r *Registry) RemoveTemp(jobID string) int {
	removed := 0
	for _, path := range r.TempFiles(jobID) {
		if err := os.Remove(path); err == nil || os.IsNotExist(err) {
			removed++
		}
	}
	return removed
}

// Purge は両ディレクトリのファイルを削除する。keepがtrueを返すファイルは残す
func (r *Registry) Purge(keep func(dir, name string) bool) (int, error) {
	removed := 0
	for _, dir := range []string{r.tempDir, r.outputDir} {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, err
		}
		for _, e := range entries {
			if e.IsDir() || (keep != nil && keep(dir, e.Name())) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
