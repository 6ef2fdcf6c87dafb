package transport

import "github.com/hydra-streaming/relay/internal/logger"

const (
	debugLevel = logger.Debug
	infoLevel  = logger.Info
	warnLevel  = logger.Warn
)
