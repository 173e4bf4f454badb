package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const name = "partner-engine"

// Options select the encoding, level and sink of the process logger.
type Options struct {
	JSON  bool
	Debug bool
	// Output is a zap sink such as stdout, stderr or a file path. Defaults to stdout.
	Output  string
	Version string
}

// Build creates the process logger: console or JSON encoding, info or debug
// level, a configurable sink and a version field on every entry.
func Build(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoding := "console"
	if opts.JSON {
		encoding = "json"
	}

	output := opts.Output
	if output == "" {
		output = "stdout"
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    encoderConfig(),
	}
	if opts.Version != "" {
		cfg.InitialFields = map[string]any{"version": opts.Version}
	}

	logger, err := cfg.Build(zap.AddStacktrace(zapcore.DPanicLevel))
	if err != nil {
		return nil, err
	}

	return logger.Named(name), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey: "step",

		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,

		TimeKey:    "time",
		EncodeTime: zapcore.RFC3339TimeEncoder,

		CallerKey:    "caller",
		EncodeCaller: zapcore.ShortCallerEncoder,

		NameKey:        "logger",
		StacktraceKey:  "stacktrace",
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}
