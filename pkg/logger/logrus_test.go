package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestContextHook(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: logrus.DebugLevel, Console: true})
	log.Out = &buf
	log.Formatter = &logrus.TextFormatter{DisableColors: true, DisableTimestamp: true}

	log.WithField("module", "test").Info("проверка")

	assert.Contains(t, buf.String(), "source=logrus_test.go:")
	assert.Contains(t, buf.String(), "module=test")
}
