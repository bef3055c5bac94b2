package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/ibflow/ingestd/pkg/config"
)

func TestParseCLILevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"":        logrus.InfoLevel,
		"INFO":    logrus.InfoLevel,
		"info":    logrus.InfoLevel,
		"DEBUG":   logrus.DebugLevel,
		"WARNING": logrus.WarnLevel,
		"WARN":    logrus.WarnLevel,
		"ERROR":   logrus.ErrorLevel,
		"FATAL":   logrus.FatalLevel,
	}
	for in, want := range cases {
		got, err := ParseCLILevel(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseCLILevelRejectsUnknown(t *testing.T) {
	_, err := ParseCLILevel("VERBOSE")
	assert.Error(t, err)
}

func TestNewBuildsLoggerAtRequestedLevel(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LoggingConfig{Dir: dir}
	log := New(cfg, logrus.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.True(t, log.ReportCaller)
}
