package resolver

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FS is the read-only filesystem view used by resolution. The package
// manager owns node_modules; nothing here writes to it.
type FS interface {
	Stat(path string) (fs.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	ReadDir(path string) ([]fs.DirEntry, error)
	Realpath(path string) (string, error)
}

// OSFS reads the local disk.
type OSFS struct{}

func (OSFS) Stat(path string) (fs.FileInfo, error)      { return os.Stat(path) }
func (OSFS) ReadFile(path string) ([]byte, error)       { return os.ReadFile(path) }
func (OSFS) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(path) }
func (OSFS) Realpath(path string) (string, error)       { return filepath.EvalSymlinks(path) }

// Stamp is the (mtime, size) pair used to detect stale cache entries.
type Stamp struct {
	ModTime time.Time
	Size    int64
}

func (s Stamp) Equal(o Stamp) bool {
	return s.Size == o.Size && s.ModTime.Equal(o.ModTime)
}

func (s Stamp) IsZero() bool { return s.ModTime.IsZero() && s.Size == 0 }

func StampOf(info fs.FileInfo) Stamp {
	return Stamp{ModTime: info.ModTime(), Size: info.Size()}
}

// StatStamp returns the stamp of path, or false when it is missing.
func StatStamp(fsys FS, path string) (Stamp, bool) {
	info, err := fsys.Stat(path)
	if err != nil || info.IsDir() {
		return Stamp{}, false
	}
	return StampOf(info), true
}

func isFile(fsys FS, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(fsys FS, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && info.IsDir()
}
