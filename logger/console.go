package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ConsoleLogger writes human-readable log lines to stderr, the run's
// diagnostic stream. Standard output is reserved for the run summary.
type ConsoleLogger struct {
	level      Level
	baseFields []Field
	core       *consoleCore
}

type consoleCore struct {
	mu     sync.Mutex
	w      io.Writer
	badges map[Level]string
}

// NewConsole creates a console logger writing to stderr.
func NewConsole(level Level, useColor bool) *ConsoleLogger {
	return NewConsoleWriter(os.Stderr, level, useColor)
}

// NewConsoleWriter creates a console logger writing to w.
func NewConsoleWriter(w io.Writer, level Level, useColor bool) *ConsoleLogger {
	return &ConsoleLogger{
		level: level,
		core:  &consoleCore{w: w, badges: levelBadges(useColor)},
	}
}

func levelBadges(useColor bool) map[Level]string {
	plain := func(l Level) string { return fmt.Sprintf("[%-5s]", l.String()) }
	badges := map[Level]string{}
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		badges[l] = plain(l)
	}
	if !useColor {
		return badges
	}
	palette := map[Level]*color.Color{
		LevelDebug: color.New(color.FgHiBlack),
		LevelInfo:  color.New(color.FgCyan),
		LevelWarn:  color.New(color.FgYellow),
		LevelError: color.New(color.FgRed),
	}
	for l, c := range palette {
		c.EnableColor()
		badges[l] = c.Sprint(plain(l))
	}
	return badges
}

func (c *ConsoleLogger) Debug(msg string, fields ...Field) { c.log(LevelDebug, msg, fields) }
func (c *ConsoleLogger) Info(msg string, fields ...Field)  { c.log(LevelInfo, msg, fields) }
func (c *ConsoleLogger) Warn(msg string, fields ...Field)  { c.log(LevelWarn, msg, fields) }
func (c *ConsoleLogger) Error(msg string, fields ...Field) { c.log(LevelError, msg, fields) }

func (c *ConsoleLogger) WithFields(fields ...Field) Logger {
	return &ConsoleLogger{level: c.level, baseFields: mergeFields(c.baseFields, fields), core: c.core}
}

func (c *ConsoleLogger) Close() error { return nil }

func (c *ConsoleLogger) log(level Level, msg string, fields []Field) {
	if level < c.level {
		return
	}

	ts := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("%s %s %s%s\n", ts, c.core.badges[level], msg, FormatFields(mergeFields(c.baseFields, fields)))

	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	io.WriteString(c.core.w, line)
}
