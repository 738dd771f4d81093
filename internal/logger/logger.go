package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l LogLevel) String() string {
	if l < DEBUG || l > FATAL {
		return "INFO"
	}
	return levelNames[l]
}

type palette struct {
	level, category *color.Color
}

var palettes = map[LogLevel]palette{
	DEBUG: {color.New(color.FgCyan), color.New(color.FgCyan, color.Bold)},
	INFO:  {color.New(color.FgGreen), color.New(color.FgGreen, color.Bold)},
	WARN:  {color.New(color.FgYellow), color.New(color.FgYellow, color.Bold)},
	ERROR: {color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
	FATAL: {color.New(color.FgRed, color.Bold, color.Underline), color.New(color.FgRed, color.Bold)},
}

// LogEntry is one JSON line of the log file.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Service   string `json:"service,omitempty"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	mu       sync.Mutex
	service  string
	out      io.Writer
	file     *os.File
	minLevel LogLevel
}

// NewLogger writes colored lines to stdout and JSON lines to
// $LOG_DIR/<service>-<date>.log. When the file cannot be opened it keeps
// logging to stdout only.
func NewLogger(service string) *Logger {
	l := &Logger{service: service, out: os.Stdout, minLevel: levelFromEnv()}

	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		dir = "logs"
	}
	name := filepath.Join(dir, fmt.Sprintf("%s-%s.log", service, time.Now().Format("2006-01-02")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Warn("LOGGER", fmt.Sprintf("file logging disabled: %v", err))
		return l
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.Warn("LOGGER", fmt.Sprintf("file logging disabled: %v", err))
		return l
	}
	l.file = f
	l.Info("LOGGER", fmt.Sprintf("Log file: %s", name))
	return l
}

// New returns a logger that only writes terminal-formatted lines to w.
func New(w io.Writer) *Logger {
	return &Logger{out: w, minLevel: DEBUG}
}

func levelFromEnv() LogLevel {
	want := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	for i, name := range levelNames {
		if name == want {
			return LogLevel(i)
		}
	}
	return INFO
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Service:   l.service,
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
	}
	// skip log and the exported wrapper
	if _, file, line, ok := runtime.Caller(2); ok {
		entry.File, entry.Line = filepath.Base(file), line
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.out, entry.terminal(level))
	if l.file != nil {
		b, _ := json.Marshal(entry)
		_, _ = l.file.Write(append(b, '\n'))
	}
}

func (e LogEntry) terminal(level LogLevel) string {
	p, ok := palettes[level]
	if !ok {
		p = palettes[INFO]
	}
	var b strings.Builder
	b.WriteString(color.New(color.FgBlue).Sprint(e.Timestamp[11:19]))
	b.WriteByte(' ')
	b.WriteString(p.level.Sprintf("%-5s", e.Level))
	b.WriteByte(' ')
	b.WriteString(p.category.Sprintf("[%-10s]", e.Category))
	b.WriteByte(' ')
	b.WriteString(e.Message)
	if e.File != "" && e.Line > 0 {
		b.WriteString(color.New(color.FgMagenta).Sprintf(" (%s:%d)", e.File, e.Line))
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) Debug(category, message string) { l.log(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.log(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.log(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.log(ERROR, category, message) }

// Fatal logs and exits with status 1. Deferred calls do not run.
func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	l.Close()
	os.Exit(1)
}

func (l *Logger) LogOrder(action string, orderID int64, message string) {
	l.log(INFO, "ORDER", fmt.Sprintf("[%s] order=%d %s", action, orderID, message))
}

func (l *Logger) LogArtifact(action string, orderItemID int64, message string) {
	l.log(INFO, "ARTIFACT", fmt.Sprintf("[%s] item=%d %s", action, orderItemID, message))
}

func (l *Logger) LogAPI(method, path string, status int, duration time.Duration) {
	l.log(INFO, "API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.log(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.log(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
