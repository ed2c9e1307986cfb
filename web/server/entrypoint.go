package server

import (
	"context"
	"io"

	"github.com/edaniels/golog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.viam.com/utils"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/sensorsync/config"
	"go.viam.com/sensorsync/service"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"config,usage=JSON config file"`
	EnvFile    string `flag:"env-file,default=.env,usage=dotenv file with SENSORSYNC_ overrides"`
	Addr       string `flag:"addr,usage=address to listen on instead of bind_address"`
	LogFile    string `flag:"log-file,usage=also write JSON logs to this rotated file"`
	Debug      bool   `flag:"debug"`
}

// withFileSink tees every entry of logger into w as JSON lines.
func withFileSink(logger golog.Logger, w io.Writer) golog.Logger {
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	l := logger.Desugar().WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))
	return l.Sugar()
}

// RunServer parses args, loads the config and serves the API until ctx is done.
func RunServer(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger = golog.NewDebugLogger("server")
	}
	if argsParsed.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   argsParsed.LogFile,
			MaxSize:    100,
			MaxBackups: 2,
			Compress:   true,
		}
		defer utils.UncheckedErrorFunc(rotator.Close)
		logger = withFileSink(logger, rotator)
	}

	cfg, err := config.Load(argsParsed.ConfigFile, argsParsed.EnvFile)
	if err != nil {
		logger.Errorw("cannot load config", "error", err)
		return err
	}
	addr := cfg.BindAddress
	if argsParsed.Addr != "" {
		addr = argsParsed.Addr
	}

	err = New(service.New(cfg, logger), logger).Serve(ctx, addr)
	if err != nil {
		logger.Errorw("error serving web", "error", err)
	}
	return err
}
