package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls rotating-file log output.
type FileConfig struct {
	// Path of the active log file.
	Path string
	// MaxSizeMB triggers rotation once the active file exceeds this size.
	MaxSizeMB int
	// MaxFiles bounds how many rotated files are kept around.
	MaxFiles int
}

// NewFileWriter returns a writer backed by a size-rotated log file. Rotated
// files are gzip-compressed.
func NewFileWriter(cfg FileConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}
