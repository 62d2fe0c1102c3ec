package generator

import (
	"os"
	"path/filepath"
)

func CreateTestSongFile(dir, filename, content string) (string, error) {
	path := filepath.Join(dir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}

func CreateTestPages(root string, cat Category, numbers ...int) error {
	dir := filepath.Join(root, cat.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, n := range numbers {
		if err := os.WriteFile(filepath.Join(dir, pageFileName(cat, n)), []byte("<!DOCTYPE html>\n"), 0644); err != nil {
			return err
		}
	}
	return nil
}

func CreateTestBuildContext(root string) BuildContext {
	return BuildContext{
		Root:       root,
		SiteName:   "Test Songbook",
		Headroom:   100,
		Categories: DefaultCategories(),
	}
}

func CleanupTempDir(dir string) {
	os.RemoveAll(dir)
}
