package util

import (
	"fmt"
	"os"
	"syscall"
)

// FileStamp identifies one version of a store file. A cached parse stays
// valid while the stamp taken at parse time still matches the file on disk.
type FileStamp struct {
	ModTime     int64  // Unix seconds
	Size        int64  // bytes
	Inode       uint64 // 0 where the platform has no inode
	Fingerprint string // CRC32 of the file tail, see CalculateFileFingerprint
}

// StatFile takes a stamp of path including its tail fingerprint.
func StatFile(path string) (FileStamp, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return FileStamp{}, err
	}
	if stat.IsDir() {
		return FileStamp{}, fmt.Errorf("%s is a directory", path)
	}

	stamp := FileStamp{
		ModTime: stat.ModTime().Unix(),
		Size:    stat.Size(),
	}
	if sysStat, ok := stat.Sys().(*syscall.Stat_t); ok {
		stamp.Inode = uint64(sysStat.Ino)
	}

	fingerprint, err := CalculateFileFingerprint(path)
	if err != nil {
		return FileStamp{}, err
	}
	stamp.Fingerprint = fingerprint
	return stamp, nil
}

// StaleReason explains why a cached stamp no longer matches, or "" when it does.
func (s FileStamp) StaleReason(current FileStamp) string {
	switch {
	case s.Inode != current.Inode:
		return fmt.Sprintf("inode changed (cached: %d, current: %d)", s.Inode, current.Inode)
	case s.Size != current.Size:
		return fmt.Sprintf("size changed (cached: %d, current: %d)", s.Size, current.Size)
	case s.ModTime != current.ModTime:
		return fmt.Sprintf("modtime changed (cached: %d, current: %d)", s.ModTime, current.ModTime)
	case s.Fingerprint != current.Fingerprint:
		return fmt.Sprintf("fingerprint mismatch (cached: %s, current: %s)", s.Fingerprint, current.Fingerprint)
	}
	return ""
}
