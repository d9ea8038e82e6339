// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jokalee/zero/cfg"
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) { suite.Run(t, new(LoggerTest)) }

func (t *LoggerTest) redirect(buf *bytes.Buffer, sev cfg.LogSeverity, format string) {
	defaultLoggerFactory.out = buf
	defaultLoggerFactory.format = format
	defaultLoggerFactory.prefix = ""
	defaultLogger = rebuild(defaultLoggerFactory)
	SetSeverity(sev)
}

func (t *LoggerTest) TestSeverityGating() {
	var buf bytes.Buffer
	t.redirect(&buf, cfg.WarningLogSeverity, "text")

	Infof("should be suppressed")
	assert.Empty(t.T(), buf.String())

	Warnf("should appear")
	assert.Contains(t.T(), buf.String(), "severity=WARNING")
	assert.Contains(t.T(), buf.String(), "should appear")
}

func (t *LoggerTest) TestTraceIsBelowDebug() {
	var buf bytes.Buffer
	t.redirect(&buf, cfg.DebugLogSeverity, "text")

	Tracef("trace message")
	assert.Empty(t.T(), buf.String())

	Debugf("debug message")
	assert.Contains(t.T(), buf.String(), "severity=DEBUG")
}

func (t *LoggerTest) TestOffSuppressesEverything() {
	var buf bytes.Buffer
	t.redirect(&buf, cfg.OffLogSeverity, "text")

	Errorf("should still be suppressed")
	assert.Empty(t.T(), buf.String())
}

func (t *LoggerTest) TestJSONFormatUsesSeverityKey() {
	var buf bytes.Buffer
	t.redirect(&buf, cfg.InfoLogSeverity, "json")

	Infof("hello %s", "world")
	assert.Contains(t.T(), buf.String(), `"severity":"INFO"`)
	assert.Contains(t.T(), buf.String(), "hello world")
}

func (t *LoggerTest) TestSetLogFormatRebuildsHandler() {
	var buf bytes.Buffer
	defaultLoggerFactory.out = &buf
	SetSeverity(cfg.InfoLogSeverity)

	SetLogFormat("text")
	Infof("in text")
	assert.Contains(t.T(), buf.String(), "severity=INFO")
	buf.Reset()

	SetLogFormat("json")
	Infof("in json")
	assert.Contains(t.T(), buf.String(), `"severity":"INFO"`)

	SetLogFormat("nonsense")
	assert.Equal(t.T(), "json", defaultLoggerFactory.format)
}

func (t *LoggerTest) TestInitLogFileWritesThroughAsyncLogger() {
	dir := t.T().TempDir()
	path := filepath.Join(dir, "zero.log")

	lc := cfg.LoggingConfig{
		FilePath:    cfg.ResolvedPath(path),
		Format:      "text",
		Severity:    cfg.DebugLogSeverity,
		LogRotation: cfg.DefaultLogRotateConfig(),
	}
	require.NoError(t.T(), InitLogFile(lc))
	defer func() {
		require.NoError(t.T(), Close())
	}()

	Infof("file-backed message")
	require.NoError(t.T(), defaultLoggerFactory.closer.Close())
	defaultLoggerFactory.closer = nil

	data, err := os.ReadFile(path)
	require.NoError(t.T(), err)
	assert.Contains(t.T(), string(data), "file-backed message")
}

func (t *LoggerTest) TestInitLogFileEmptyPathIsNoOp() {
	before := defaultLoggerFactory.out
	require.NoError(t.T(), InitLogFile(cfg.LoggingConfig{}))
	assert.Equal(t.T(), before, defaultLoggerFactory.out)
}

func (t *LoggerTest) TestLevelNameBoundaries() {
	assert.Equal(t.T(), "TRACE", levelName(LevelTrace))
	assert.Equal(t.T(), "DEBUG", levelName(LevelDebug))
	assert.Equal(t.T(), "INFO", levelName(LevelInfo))
	assert.Equal(t.T(), "WARNING", levelName(LevelWarn))
	assert.Equal(t.T(), "ERROR", levelName(LevelError))
}

func (t *LoggerTest) TestSeverityToLevel() {
	assert.Equal(t.T(), LevelTrace, severityToLevel(cfg.TraceLogSeverity))
	assert.Equal(t.T(), LevelOff, severityToLevel(cfg.OffLogSeverity))
	assert.Equal(t.T(), slog.Level(LevelInfo), severityToLevel(cfg.LogSeverity("garbage")))
}
