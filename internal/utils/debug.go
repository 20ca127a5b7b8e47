package utils

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const debugMaxSizeMB = 10

var (
	debugLog *lumberjack.Logger
	mu       sync.Mutex
)

// ConfigureDebug sends debug logs to debug.log in dir, keeping at most
// retention rotated files. An empty dir disables logging.
func ConfigureDebug(dir string, retention int) {
	mu.Lock()
	defer mu.Unlock()

	if debugLog != nil {
		_ = debugLog.Close()
		debugLog = nil
	}
	if dir == "" {
		return
	}
	debugLog = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "debug.log"),
		MaxSize:    debugMaxSizeMB,
		MaxBackups: retention,
	}
}

// CloseDebug flushes and closes the debug log.
func CloseDebug() {
	ConfigureDebug("", 0)
}

// Debug writes a message to the debug log in the configured directory
func Debug(format string, args ...any) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	mu.Lock()
	defer mu.Unlock()

	if debugLog == nil {
		return
	}
	_, _ = fmt.Fprintf(debugLog, "[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
}
