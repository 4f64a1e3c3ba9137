// Package logging builds the process-wide zap logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Dev     bool
	File    string // optional rotating file sink
	MaxMB   int
	Backups int
}

// New returns a JSON production logger, or a console logger in dev mode.
// When File is set, entries are also written to a size-rotated file.
func New(opts Options) (*zap.Logger, error) {
	var (
		encCfg zapcore.EncoderConfig
		level  zapcore.Level
	)
	if opts.Dev {
		encCfg = zap.NewDevelopmentEncoderConfig()
		level = zapcore.DebugLevel
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		level = zapcore.InfoLevel
	}

	var consoleEnc zapcore.Encoder
	if opts.Dev {
		consoleEnc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level)}

	if opts.File != "" {
		w := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxMB, 50),
			MaxBackups: orDefault(opts.Backups, 5),
			Compress:   true,
		}
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(w), level))
	}

	opts2 := []zap.Option{zap.AddCaller()}
	if !opts.Dev {
		opts2 = append(opts2, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewTee(cores...), opts2...), nil
}

// Mask shortens a secret to its first and last four bytes.
func Mask(s string) string {
	if len(s) <= 12 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}
