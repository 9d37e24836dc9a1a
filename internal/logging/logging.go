// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"compass-ng/internal/config"
)

// New returns a logger writing to out (stderr when nil) and, when tee is
// non-nil, a JSON copy of every entry to tee. Development mode switches out
// to a colored console encoding; tee always receives JSON.
func New(cfg config.LogConfig, out io.Writer, tee io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	if out == nil {
		out = os.Stderr
	}

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.TimeKey = "ts"
	jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonCfg.EncodeDuration = zapcore.StringDurationEncoder

	var enc zapcore.Encoder
	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(devCfg)
		opts = append(opts, zap.Development())
	} else {
		enc = zapcore.NewJSONEncoder(jsonCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), level)}
	if tee != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(tee), level))
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}
