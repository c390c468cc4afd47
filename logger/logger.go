// Package logger holds the process wide structured logger.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field names used across gpnp log lines.
const (
	FieldRunID     = "run_id"
	FieldState     = "state"
	FieldMessage   = "message"
	FieldNozzle    = "nozzle"
	FieldNozzleTip = "nozzle_tip"
	FieldFeeder    = "feeder"
	FieldPart      = "part"
	FieldPlacement = "placement"
	FieldBoard     = "board"
	FieldEvent     = "event"
	FieldError     = "error"
	FieldAddress   = "address"
	FieldPort      = "port"
	FieldFile      = "file"
	FieldCount     = "count"
)

// Logger is the global logger. It discards everything until Initialize
// is called.
var Logger *zap.SugaredLogger

func init() {
	Logger = zap.NewNop().Sugar()
}

// Initialize replaces Logger with a console or JSON logger at the given
// level ("debug", "info", "warn", "error").
func Initialize(jsonOutput bool, level string) error {
	lvl := zap.NewAtomicLevel()
	if level != "" {
		err := lvl.UnmarshalText([]byte(level))
		if err != nil {
			return err
		}
	}

	var z *zap.Logger
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = lvl
		var err error
		z, err = cfg.Build()
		if err != nil {
			return err
		}
	} else {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		z = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(enc),
			zapcore.AddSync(os.Stderr),
			lvl,
		))
	}

	Logger = z.Sugar()
	return nil
}

// Named returns a child of Logger for a component.
func Named(component string) *zap.SugaredLogger {
	return Logger.Named(component)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger.Sync()
}
