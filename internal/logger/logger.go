package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity level of a log message.
type LogLevel string

const (
	Debug LogLevel = "DEBUG"
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

// LogFileName is the name of the rotated log file inside the log directory.
const LogFileName = "motion.log"

// minPriority is the priority of the minimum level to output. Animation
// drivers log from their own goroutines, so it is read atomically.
var minPriority atomic.Int32

// levelPriority returns the numeric priority of a log level (higher = more severe)
func levelPriority(level LogLevel) int {
	switch level {
	case Debug:
		return 0
	case Info:
		return 1
	case Warn:
		return 2
	case Error:
		return 3
	default:
		return 1
	}
}

var levelsByPriority = [...]LogLevel{Debug, Info, Warn, Error}

// ParseLevel maps a config value such as "debug" to a LogLevel. Matching is
// case-insensitive; unknown values give Info and false.
func ParseLevel(level string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return Debug, true
	case "info":
		return Info, true
	case "warn", "warning":
		return Warn, true
	case "error":
		return Error, true
	default:
		return Info, false
	}
}

// SetLevel sets the minimum log level. Valid values: "debug", "info", "warn", "error"
func SetLevel(level string) {
	l, _ := ParseLevel(level)
	minPriority.Store(int32(levelPriority(l)))
	log.Printf("Log level set to: %s", l)
}

// Level returns the current minimum log level.
func Level() LogLevel {
	return levelsByPriority[minPriority.Load()]
}

// Enabled reports whether messages at level are written.
func Enabled(level LogLevel) bool {
	return levelPriority(level) >= int(minPriority.Load())
}

// LogEntry represents a single log message with metadata for streaming to clients.
type LogEntry struct {
	Timestamp string   `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
}

var (
	listeners  []chan LogEntry
	mu         sync.Mutex
	fileLogger *lumberjack.Logger
)

func init() {
	minPriority.Store(int32(levelPriority(Info)))
	listeners = make([]chan LogEntry, 0)
	// Default to stdout only until Init() is called with proper config
	log.SetOutput(os.Stdout)
	log.SetFlags(0) // Disable standard flags (date/time) so we can control format
}

// Init adds a rotating log file in logDir next to stdout.
// Should be called after config is loaded.
func Init(logDir string) {
	// Ensure logs directory exists with restricted permissions (owner only)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		log.Printf("Failed to create log directory: %v", err)
		return
	}

	fileLogger = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFileName),
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}

	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
}

// InitFileOnly is Init without stdout, for programs that own the terminal.
// An empty logDir discards output; subscribers still receive entries.
func InitFileOnly(logDir string) {
	if logDir == "" {
		log.SetOutput(io.Discard)
		return
	}
	Init(logDir)
	if fileLogger != nil {
		log.SetOutput(fileLogger)
	} else {
		log.SetOutput(io.Discard)
	}
}

// Close flushes and closes the log file, returning output to stdout only.
func Close() error {
	log.SetOutput(os.Stdout)
	if fileLogger == nil {
		return nil
	}
	err := fileLogger.Close()
	fileLogger = nil
	return err
}

// GetLogDir returns the directory where log files are stored
func GetLogDir() string {
	if fileLogger != nil {
		return filepath.Dir(fileLogger.Filename)
	}
	return ""
}

// Subscribe returns a channel that receives all log entries for real-time streaming.
func Subscribe() chan LogEntry {
	mu.Lock()
	defer mu.Unlock()
	ch := make(chan LogEntry, 100)
	listeners = append(listeners, ch)
	return ch
}

// Unsubscribe removes a log listener channel and closes it.
func Unsubscribe(ch chan LogEntry) {
	mu.Lock()
	defer mu.Unlock()
	for i, l := range listeners {
		if l == ch {
			listeners = append(listeners[:i], listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func broadcast(entry LogEntry) {
	mu.Lock()
	defer mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- entry:
		default:
			// Drop message if channel is full to prevent blocking
		}
	}
}

// Log writes a formatted message at the specified level to stdout, file, and subscribers.
func Log(level LogLevel, format string, v ...interface{}) {
	if !Enabled(level) {
		return
	}

	msg := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format(time.RFC3339)

	// Format: timestamp [LEVEL] message
	log.Printf("%s [%s] %s", timestamp, level, msg)

	broadcast(LogEntry{
		Timestamp: timestamp,
		Level:     level,
		Message:   msg,
	})
}

// Infof logs a formatted message at INFO level.
func Infof(format string, v ...interface{}) {
	Log(Info, format, v...)
}

// Errorf logs a formatted message at ERROR level.
func Errorf(format string, v ...interface{}) {
	Log(Error, format, v...)
}

// Debugf logs a formatted message at DEBUG level.
func Debugf(format string, v ...interface{}) {
	Log(Debug, format, v...)
}

// Warnf logs a formatted message at WARN level.
func Warnf(format string, v ...interface{}) {
	Log(Warn, format, v...)
}
