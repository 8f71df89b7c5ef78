// Package chat implements the interactive conversational front-end.
package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/runger/sheetql/internal/session"
)

// FileSource lists the spreadsheet files a user can select. Remote
// backends implement this and download to a local path before
// returning.
type FileSource interface {
	List() ([]session.File, error)
}

// DirSource serves spreadsheet files from a local folder.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// List returns the spreadsheet files in the folder, sorted by name.
func (s *DirSource) List() ([]session.File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read files dir %s: %w", s.dir, err)
	}

	var files []session.File
	for _, e := range entries {
		if e.IsDir() || !isSpreadsheet(e.Name()) {
			continue
		}
		files = append(files, session.File{
			ID:   e.Name(),
			Name: e.Name(),
			Path: filepath.Join(s.dir, e.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func isSpreadsheet(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls":
		return true
	default:
		return false
	}
}
