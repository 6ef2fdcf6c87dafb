// Package conf contains the process configuration and the pipeline document.
package conf

import (
	"fmt"
	"os"
	"time"

	"github.com/hydra-streaming/relay/internal/logger"
)

// DefaultControlSocket is the endpoint of the control process.
const DefaultControlSocket = "/tmp/hydra_unix_sock"

// Conf is the process configuration.
type Conf struct {
	LogLevel        LogLevel        `json:"logLevel"`
	LogDestinations LogDestinations `json:"logDestinations"`
	LogFile         string          `json:"logFile"`
	ControlSocket   string          `json:"controlSocket"`
	WriteTimeout    Duration        `json:"writeTimeout"`
	StatsInterval   Duration        `json:"statsInterval"`
	QueueSize       int             `json:"queueSize"`
	Metrics         bool            `json:"metrics"`
	MetricsAddress  string          `json:"metricsAddress"`
	PPROF           bool            `json:"pprof"`
	WatchPipeline   bool            `json:"watchPipeline"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "hydra.log"
	conf.ControlSocket = DefaultControlSocket
	conf.WriteTimeout = Duration(10 * time.Second)
	conf.StatsInterval = Duration(1 * time.Second)
	conf.QueueSize = 200
	conf.MetricsAddress = ":9998"
	conf.WatchPipeline = true
}

// Load loads a Conf. An empty path returns the defaults.
func Load(fpath string) (*Conf, error) {
	conf := &Conf{}
	conf.setDefaults()

	if fpath == "" {
		return conf, nil
	}

	buf, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	err = unmarshalYAML(buf, conf)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	err = conf.Validate()
	if err != nil {
		return nil, err
	}

	return conf, nil
}

// Validate checks the configuration for errors.
func (conf Conf) Validate() error {
	if conf.ControlSocket == "" {
		return fmt.Errorf("'controlSocket' must not be empty")
	}
	if conf.StatsInterval <= 0 {
		return fmt.Errorf("'statsInterval' must be greater than zero")
	}
	if conf.QueueSize <= 0 {
		return fmt.Errorf("'queueSize' must be greater than zero")
	}
	if conf.Metrics && conf.MetricsAddress == "" {
		return fmt.Errorf("'metricsAddress' must be set when 'metrics' is enabled")
	}
	return nil
}
