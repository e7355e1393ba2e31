package logger

import (
	"go.uber.org/zap"
)

// Log is the process-wide logger. It defaults to a no-op logger so packages
// (and their tests) can log before Init is called.
var Log = zap.NewNop().Sugar()

func Init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}
