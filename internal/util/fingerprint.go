package util

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// fingerprintWindow is how much of the file tail feeds the fingerprint.
// Store files are appended to, so the tail changes on every write.
const fingerprintWindow = 2048

// CalculateFileFingerprint returns the CRC32 of the last 2KB of a file as hex.
func CalculateFileFingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}

	readSize := int64(fingerprintWindow)
	if stat.Size() < readSize {
		readSize = stat.Size()
	}
	if readSize == 0 {
		return fmt.Sprintf("%08x", crc32.ChecksumIEEE(nil)), nil
	}

	if _, err := file.Seek(-readSize, io.SeekEnd); err != nil {
		return "", err
	}

	data := make([]byte, readSize)
	if _, err := io.ReadFull(file, data); err != nil {
		return "", err
	}

	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)), nil
}
