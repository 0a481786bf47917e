package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferryline/photoferry/config"
)

func TestNewLogger(t *testing.T) {
	cfg := &config.LoggerConfig{
		Level: config.LogLevelInfo,
	}
	logger := NewLogger(cfg)
	require.NotNil(t, logger)
}

func TestLogLevel_Filtering(t *testing.T) {
	emit := func(l Logger) {
		l.Error("retrieval failed")
		l.Warn("skipping subtree")
		l.Info("transfer complete")
		l.Debug("pool connection reused")
		l.Verbose("progress 42%")
	}

	tests := []struct {
		level   config.LogLevel
		visible []string
		hidden  []string
	}{
		{
			level:   config.LogLevelSilent,
			visible: nil,
			hidden:  []string{"retrieval failed", "skipping subtree", "transfer complete", "pool connection reused", "progress 42%"},
		},
		{
			level:   config.LogLevelError,
			visible: []string{"retrieval failed"},
			hidden:  []string{"skipping subtree", "transfer complete", "pool connection reused", "progress 42%"},
		},
		{
			level:   config.LogLevelWarn,
			visible: []string{"retrieval failed", "skipping subtree"},
			hidden:  []string{"transfer complete", "pool connection reused", "progress 42%"},
		},
		{
			level:   config.LogLevelInfo,
			visible: []string{"retrieval failed", "skipping subtree", "transfer complete"},
			hidden:  []string{"pool connection reused", "progress 42%"},
		},
		{
			level:   config.LogLevelDebug,
			visible: []string{"retrieval failed", "skipping subtree", "transfer complete", "pool connection reused"},
			hidden:  []string{"progress 42%"},
		},
		{
			level:   config.LogLevelVerbose,
			visible: []string{"retrieval failed", "skipping subtree", "transfer complete", "pool connection reused", "progress 42%"},
			hidden:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(&config.LoggerConfig{Level: tt.level}, &buf)

			emit(logger)

			output := buf.String()
			for _, msg := range tt.visible {
				require.Contains(t, output, msg)
			}
			for _, msg := range tt.hidden {
				require.NotContains(t, output, msg)
			}
		})
	}
}

func TestLogger_WithFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.LoggerConfig{Level: config.LogLevelInfo}, &buf)

	logger.Info("Discovered %d candidates (%d skipped)", 37, 4)

	require.Contains(t, buf.String(), "Discovered 37 candidates (4 skipped)")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.LoggerConfig{Level: config.LogLevelInfo}, &buf)

	contextLogger := logger.With("component", "walker")
	contextLogger.Info("scan finished")

	output := buf.String()
	require.Contains(t, output, "component=walker")
	require.Contains(t, output, "scan finished")
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.LoggerConfig{Level: config.LogLevelInfo}, &buf)

	fields := map[string]interface{}{
		"component": "uploader",
		"album":     "Shows/Season 1",
		"attempt":   2,
	}
	contextLogger := logger.WithFields(fields)
	contextLogger.Info("upload confirmed")

	output := buf.String()
	require.Contains(t, output, "component=uploader")
	require.Contains(t, output, "album=Shows/Season 1")
	require.Contains(t, output, "attempt=2")
	require.Contains(t, output, "upload confirmed")
}

func TestLogger_ChainedWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.LoggerConfig{Level: config.LogLevelInfo}, &buf)

	contextLogger := logger.With("component", "source").With("host", "nas.local")
	contextLogger.Info("connected")

	output := buf.String()
	require.Contains(t, output, "component=source")
	require.Contains(t, output, "host=nas.local")
	require.Contains(t, output, "connected")
}

func TestLogger_FieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.LoggerConfig{Level: config.LogLevelInfo}, &buf)

	logger.WithFields(map[string]interface{}{
		"zone": "b",
		"app":  "ferry",
	}).Info("ready")

	// Deterministic field order regardless of map iteration.
	require.Contains(t, buf.String(), "[app=ferry, zone=b]")
}

func TestLogger_Timestamp(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.LoggerConfig{
		Level:      config.LogLevelInfo,
		TimeFormat: "2006-01-02 15:04:05",
	}
	logger := NewLoggerWithWriter(cfg, &buf)

	logger.Info("test message")

	output := buf.String()
	require.Regexp(t, `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`, output)
	require.Contains(t, output, "test message")
}

func TestLogger_LevelInOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.LoggerConfig{Level: config.LogLevelVerbose}, &buf)

	logger.Error("error msg")
	logger.Warn("warn msg")
	logger.Info("info msg")
	logger.Debug("debug msg")
	logger.Verbose("verbose msg")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[0], "[error]")
	require.Contains(t, lines[1], "[warn]")
	require.Contains(t, lines[2], "[info]")
	require.Contains(t, lines[3], "[debug]")
	require.Contains(t, lines[4], "[verbose]")
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	require.NotNil(t, logger)

	// Should not panic
	logger.Error("error")
	logger.Warn("warn")
	logger.Info("info")
	logger.Debug("debug")
	logger.Verbose("verbose")

	contextLogger := logger.With("key", "value")
	require.NotNil(t, contextLogger)
	contextLogger.Info("test")

	fieldsLogger := logger.WithFields(map[string]interface{}{"key": "value"})
	require.NotNil(t, fieldsLogger)
	fieldsLogger.Info("test")
}

func TestLoggerConfig_Defaults(t *testing.T) {
	cfg := &config.LoggerConfig{}
	cfg.ApplyDefaults()

	require.Equal(t, config.LogLevelInfo, cfg.Level)
	require.Equal(t, "2006-01-02 15:04:05", cfg.TimeFormat)
}

func TestLoggerConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggerConfig
		wantErr bool
	}{
		{
			name:    "valid silent level",
			cfg:     config.LoggerConfig{Level: config.LogLevelSilent},
			wantErr: false,
		},
		{
			name:    "valid warn level",
			cfg:     config.LoggerConfig{Level: config.LogLevelWarn},
			wantErr: false,
		},
		{
			name:    "valid verbose level",
			cfg:     config.LoggerConfig{Level: config.LogLevelVerbose},
			wantErr: false,
		},
		{
			name:    "empty level (will use default)",
			cfg:     config.LoggerConfig{Level: ""},
			wantErr: false,
		},
		{
			name:    "invalid level",
			cfg:     config.LoggerConfig{Level: "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
