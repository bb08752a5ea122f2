// Package audit writes the executor's action log under the workspace
// state directory.
package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"relkit/internal/config"
)

// LogName is the executor log file under the state directory.
const LogName = "release.log"

// Logger records executor actions for one run.
type Logger struct {
	log *zap.Logger
}

// Open creates the run logger, appending to .relkit/logs/release.log.
// Every entry carries the run id.
func Open(root, runID string) (*Logger, error) {
	dir := filepath.Join(root, config.StateDir, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, LogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening release log: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)

	log := zap.New(core).With(zap.String("run", runID))
	return &Logger{log: log}, nil
}

// Nop returns a logger that records nothing. Dry runs use it unless
// --verbose asks for the full trail.
func Nop() *Logger {
	return &Logger{log: zap.NewNop()}
}

// Action records one executor step with its fields.
func (l *Logger) Action(action string, fields ...zap.Field) {
	l.log.Info(action, fields...)
}

// Error records a failed step.
func (l *Logger) Error(action string, err error, fields ...zap.Field) {
	l.log.Error(action, append(fields, zap.Error(err))...)
}

// Close flushes buffered entries.
func (l *Logger) Close() error {
	// Sync on a file-backed core may legitimately fail on some
	// platforms; the log is advisory.
	_ = l.log.Sync()
	return nil
}
