// Package logging builds the process-wide structured logger. Every
// component below threads a *zap.Logger through instead of calling the
// standard log package directly, the way feriteja-satu-naskah-be's
// pkg/logger wires a single zap.Logger for the whole service.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON zap.Logger writing to stdout, with caller
// annotation. debug lowers the level floor to Debug; otherwise it is
// Info.
func New(debug bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	writer := zapcore.AddSync(os.Stdout)
	core := zapcore.NewCore(encoder, writer, level)

	return zap.New(core, zap.AddCaller())
}
