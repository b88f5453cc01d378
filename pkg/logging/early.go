package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// EarlyLog writes JSON lines shaped like the zap output to stderr, for use
// before configuration has been loaded. It never exits the process.
type EarlyLog struct {
	out         io.Writer
	serviceName string
}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{out: os.Stderr}
}

// WithServiceName returns a copy of l that tags every line.
func (l *EarlyLog) WithServiceName(name string) *EarlyLog {
	c := *l
	c.serviceName = name
	return &c
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.write("error", msg, args...)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.write("warn", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.write("info", msg, args...)
}

func (l *EarlyLog) write(level, msg string, args ...interface{}) {
	line := map[string]string{
		"timestamp": time.Now().Format("2006-01-02T15:04:05.000Z0700"),
		"level":     level,
		"message":   fmt.Sprintf(msg, args...),
	}
	if l.serviceName != "" {
		line["service_name"] = l.serviceName
	}
	b, err := json.Marshal(line)
	if err != nil {
		fmt.Fprintf(l.out, "%s: %s\n", level, line["message"])
		return
	}
	l.out.Write(append(b, '\n'))
}
