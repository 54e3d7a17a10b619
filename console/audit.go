package console

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditLog represents a single command execution log entry
type AuditLog struct {
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Command   string        `json:"command"`
	Output    string        `json:"output,omitempty"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

const defaultAuditCapacity = 1000

// LogManager keeps the audit trail of executed RCON commands in memory and,
// optionally, as JSON lines in a rotated file.
type LogManager struct {
	logFile  string
	capacity int
	logs     []AuditLog
	writer   io.WriteCloser
	mu       sync.RWMutex
}

// NewLogManager creates a new log manager. An empty logFile keeps entries in
// memory only.
func NewLogManager(logFile string) *LogManager {
	lm := &LogManager{capacity: defaultAuditCapacity}
	lm.SetLogFile(logFile, 10, 5)
	return lm
}

// SetLogFile sets the log file path and its rotation limits.
func (lm *LogManager) SetLogFile(path string, maxSizeMB, maxBackups int) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.writer != nil {
		lm.writer.Close()
		lm.writer = nil
	}
	lm.logFile = path
	if path == "" {
		return
	}
	lm.writer = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
}

// GetLogFile returns the current log file path
func (lm *LogManager) GetLogFile() string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.logFile
}

// Log records a command execution
func (lm *LogManager) Log(entry AuditLog) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.logs = append(lm.logs, entry)
	if over := len(lm.logs) - lm.capacity; over > 0 {
		lm.logs = append([]AuditLog(nil), lm.logs[over:]...)
	}

	if lm.writer == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	if _, err := lm.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

// GetRecentLogs returns the last N logs
func (lm *LogManager) GetRecentLogs(n int) []AuditLog {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	start := 0
	if n > 0 && n < len(lm.logs) {
		start = len(lm.logs) - n
	}
	result := make([]AuditLog, len(lm.logs)-start)
	copy(result, lm.logs[start:])
	return result
}

// GetFailedLogs returns only failed command logs
func (lm *LogManager) GetFailedLogs() []AuditLog {
	return lm.filter(func(l AuditLog) bool { return !l.Success })
}

// SearchLogs searches logs by command text
func (lm *LogManager) SearchLogs(query string) []AuditLog {
	return lm.filter(func(l AuditLog) bool { return strings.Contains(l.Command, query) })
}

func (lm *LogManager) filter(keep func(AuditLog) bool) []AuditLog {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	result := make([]AuditLog, 0)
	for _, l := range lm.logs {
		if keep(l) {
			result = append(result, l)
		}
	}
	return result
}

// Clear clears all in-memory logs
func (lm *LogManager) Clear() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.logs = nil
}

// LoadFromFile loads logs from the log file. Malformed lines are skipped.
func (lm *LogManager) LoadFromFile() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.logFile == "" {
		return nil
	}
	f, err := os.Open(lm.logFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	defer f.Close()

	logs := make([]AuditLog, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry AuditLog
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		logs = append(logs, entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	if over := len(logs) - lm.capacity; over > 0 {
		logs = logs[over:]
	}
	lm.logs = logs
	return nil
}

// Close releases the log file.
func (lm *LogManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.writer == nil {
		return nil
	}
	err := lm.writer.Close()
	lm.writer = nil
	return err
}
