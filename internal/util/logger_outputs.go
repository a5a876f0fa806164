package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// formatEntry renders one entry as a single line without the trailing newline.
func formatEntry(entry LogEntry, format LogFormat) (string, error) {
	if format == FormatJSON {
		data, err := sonic.Marshal(entry)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	var b strings.Builder
	b.WriteString(entry.Timestamp.Format("2006/01/02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(entry.Level)
	b.WriteString("] ")
	if entry.Component != "" {
		b.WriteString(entry.Component)
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)
	for _, k := range sortedFieldKeys(entry.Fields) {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	return b.String(), nil
}

// WriterOutput writes log lines to any io.Writer.
type WriterOutput struct {
	writer io.Writer
	closer io.Closer
	format LogFormat
	mu     sync.Mutex
}

// NewConsoleOutput creates an output for a terminal stream; Close leaves it open.
func NewConsoleOutput(writer io.Writer, format LogFormat) Output {
	return &WriterOutput{writer: writer, format: format}
}

// NewFileOutput appends to path, creating parent directories as needed.
func NewFileOutput(path string, format LogFormat) (Output, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &WriterOutput{writer: file, closer: file, format: format}, nil
}

func (w *WriterOutput) Write(entry LogEntry) error {
	line, err := formatEntry(entry, w.format)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.writer, line)
	return err
}

func (w *WriterOutput) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
