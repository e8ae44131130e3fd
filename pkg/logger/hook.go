package logger

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusContextHook добавляет в запись лога место вызова (файл:строка)
type LogrusContextHook struct{}

// Levels уровни, на которых срабатывает хук
func (hook LogrusContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire заполняет поле source первым кадром стека вне logrus и самого хука
func (hook LogrusContextHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "github.com/sirupsen/logrus") && !strings.Contains(frame.Function, "LogrusContextHook") {
			entry.Data["source"] = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
			break
		}
		if !more {
			break
		}
	}
	return nil
}
