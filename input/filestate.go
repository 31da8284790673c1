package input

import (
	"os"
	"syscall"
	"time"
)

// FileState is the conversion state of one input file.
type FileState struct {
	Path     string    `json:"path"`
	Offset   int64     `json:"offset"`
	Size     int64     `json:"size"`
	Inode    uint64    `json:"inode"`
	Device   uint64    `json:"device"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Done     bool      `json:"done"`
	Output   string    `json:"output,omitempty"`
}

func NewFileState(path string) (*FileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	stat := info.Sys().(*syscall.Stat_t)
	state := &FileState{
		Path:     path,
		Size:     stat.Size,
		Inode:    stat.Ino,
		Device:   uint64(stat.Dev),
		Created:  info.ModTime(),
		Modified: info.ModTime(),
	}
	return state, nil
}

// Open opens the file for conversion from its first byte. The XML document is
// always produced whole, so Offset is progress information only.
func (f *FileState) Open() (*os.File, error) {
	return os.Open(f.Path)
}
