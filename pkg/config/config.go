// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtpengine/pkg/engine"
)

const (
	StatsUpdateInterval = time.Second * 10
)

var (
	ErrInvalidBitrateBounds = errors.New("min_bitrate must not exceed max_bitrate")
	ErrInvalidPort          = errors.New("rtp and prometheus ports must differ")
)

type Config struct {
	// UDP port the receive loop binds to
	Port uint32 `yaml:"port,omitempty"`

	BindAddress    string `yaml:"bind_address,omitempty"`
	PrometheusPort uint32 `yaml:"prometheus_port,omitempty"`
	NodeID         string `yaml:"node_id,omitempty"`

	Engine engine.EngineConfig `yaml:"engine,omitempty"`

	// interval between receiver report emissions
	ReportInterval time.Duration `yaml:"report_interval,omitempty"`

	// interval between jitter buffer timeout flushes
	TickInterval time.Duration `yaml:"tick_interval,omitempty"`

	Logging     LoggingConfig `yaml:"logging,omitempty"`
	Development bool          `yaml:"development,omitempty"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
}

var DefaultConfig = Config{
	Port:           7880,
	BindAddress:    "0.0.0.0",
	PrometheusPort: 6789,
	NodeID:         "rtpengine",
	Engine:         engine.DefaultEngineConfig,
	ReportInterval: 5 * time.Second,
	TickInterval:   20 * time.Millisecond,
}

// NewConfig builds a Config from defaults overlaid with the YAML in
// confString. With strictMode, unknown fields in the YAML are an error.
func NewConfig(confString string, strictMode bool) (*Config, error) {
	// start with defaults
	marshalled, err := yaml.Marshal(&DefaultConfig)
	if err != nil {
		return nil, err
	}

	var conf Config
	if err = yaml.Unmarshal(marshalled, &conf); err != nil {
		return nil, err
	}

	if confString != "" {
		decoder := yaml.NewDecoder(strings.NewReader(confString))
		decoder.KnownFields(strictMode)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %v", err)
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	if conf.Logging.Level == "" && conf.Development {
		conf.Logging.Level = "debug"
	}
	return &conf, nil
}

func (conf *Config) Validate() error {
	rc := conf.Engine.Congestion.RateController
	if rc.MinBitrate > rc.MaxBitrate {
		return ErrInvalidBitrateBounds
	}
	if conf.PrometheusPort != 0 && conf.PrometheusPort == conf.Port {
		return ErrInvalidPort
	}
	return nil
}
