package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	timeFormat      = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile  = "./roomcast.log"
	defaultMinLevel = zerolog.WarnLevel
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig forwards log lines at or above MinLevel to an operator chat.
type ChatConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// Service owns the log sinks and rebuilds them on Apply.
type Service struct {
	root atomic.Pointer[zerolog.Logger]

	mu   sync.Mutex
	file *os.File
	chat *chatSink
}

// New applies cfg and returns the service plus a root logger bound to it.
// sender may be nil; set it later with SetSender.
func New(cfg Config, sender Sender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{chat: newChatSink(sender)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetChatTarget sets the chat that receives forwarded log lines.
func (s *Service) SetChatTarget(chatID int64) { s.chat.setTarget(chatID) }

// SetSender swaps the chat transport. nil disables forwarding.
func (s *Service) SetSender(sender Sender) { s.chat.setSender(sender) }

// Apply rebuilds the sinks from cfg. Loggers already handed out pick up the
// change on their next line.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stdout))
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}

	s.chat.configure(cfg.Chat)
	if cfg.Chat.Enabled {
		writers = append(writers, s.chat)
	}

	// Never leave the process silent by accident.
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close stops the chat worker and closes the log file. Logging after Close
// still works on console.
func (s *Service) Close() error {
	s.chat.close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	zl := zerolog.New(consoleWriter(os.Stdout)).With().Timestamp().Logger()
	s.root.Store(&zl)
	return err
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
