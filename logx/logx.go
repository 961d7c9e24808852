package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const (
	maxLogSize  = 10 * 1024 * 1024 // 10MB
	maxLogFiles = 3                // Keep 3 backup files
	logFileName = "archiver.log"
)

var (
	mu      sync.Mutex
	logFile *os.File
	logDir  string
	logSize int64
)

// Init points the standard logger at <workspace>/logs/archiver.log, rotating
// the file when it grows past maxLogSize. Warnings and errors still reach the
// terminal because callers print those through the CLI, not the log.
// Safe to call once per run; later calls reconfigure the output.
func Init(workspace string) error {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(workspace, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logDir = dir
	logPath := filepath.Join(dir, logFileName)

	// Check if we need to rotate before opening
	if info, err := os.Stat(logPath); err == nil {
		logSize = info.Size()
		if logSize >= maxLogSize {
			if err := rotate(); err != nil {
				return fmt.Errorf("failed to rotate logs: %w", err)
			}
			logSize = 0
		}
	}

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = file
	log.SetOutput(&rotatingWriter{})
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	log.Printf("[Log] Writing to %s (max %d MB, %d backups)", logPath, maxLogSize/(1024*1024), maxLogFiles)
	return nil
}

// Close flushes and closes the log file handle. The standard logger falls
// back to stderr afterwards.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	log.SetOutput(os.Stderr)
}

// rotatingWriter forwards standard-logger output to the current file and
// rotates when the size cap is hit.
type rotatingWriter struct{}

func (rotatingWriter) Write(p []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return os.Stderr.Write(p)
	}

	n, err := logFile.Write(p)
	logSize += int64(n)
	if err != nil {
		return n, err
	}

	if logSize >= maxLogSize {
		if err := rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to rotate logs: %v\n", err)
			return n, nil
		}
		logSize = 0

		logPath := filepath.Join(logDir, logFileName)
		file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to reopen log after rotation: %v\n", err)
			logFile = nil
			return n, nil
		}
		logFile = file
	}

	return n, nil
}

// rotate shifts archiver.log -> .1 -> .2 -> .3, dropping the oldest.
// Caller must hold mu.
func rotate() error {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	basePath := filepath.Join(logDir, logFileName)

	// Remove oldest backup (archiver.log.3)
	os.Remove(fmt.Sprintf("%s.%d", basePath, maxLogFiles))

	// Rotate existing backups
	for i := maxLogFiles - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", basePath, i)
		newPath := fmt.Sprintf("%s.%d", basePath, i+1)
		os.Rename(oldPath, newPath) // Ignore error if source doesn't exist
	}

	if err := os.Rename(basePath, basePath+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// Discard silences the standard logger. Used by tests that do not care about
// log output.
func Discard() {
	mu.Lock()
	defer mu.Unlock()
	logFile = nil
	log.SetOutput(io.Discard)
}
