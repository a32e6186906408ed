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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtpengine/pkg/config"
	"github.com/livekit/rtpengine/pkg/service"
	"github.com/livekit/rtpengine/pkg/telemetry/prometheus"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Usage: "path to rtpengine config file",
	},
	&cli.StringFlag{
		Name:    "config-body",
		Usage:   "rtpengine config in YAML, typically passed in as an environment var in a container",
		EnvVars: []string{"RTPENGINE_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "bind",
		Usage: "IP address to listen on",
	},
	&cli.UintFlag{
		Name:    "port",
		Usage:   "UDP port to receive RTP traffic on",
		EnvVars: []string{"RTPENGINE_PORT"},
	},
	&cli.BoolFlag{
		Name:  "dev",
		Usage: "sets log-level to debug and console formatter. insecure for production",
	},
	&cli.BoolFlag{
		Name:   "disable-strict-config",
		Usage:  "disables strict config parsing",
		Hidden: true,
	},
}

func main() {
	app := &cli.App{
		Name:        "rtpengine",
		Usage:       "Adaptive RTP transport engine",
		Description: "run without subcommands to start the receiver",
		Flags:       baseFlags,
		Action:      startReceiver,
		Commands: []*cli.Command{
			{
				Name:   "ports",
				Usage:  "print ports that the receiver is configured to use",
				Action: printPorts,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
	}
}

func startReceiver(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	prometheus.Init(conf.NodeID)

	receiver := service.NewReceiver(conf, logger.GetLogger())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infow("exit requested, shutting down", "signal", sig)
		receiver.Stop()
	}()

	return receiver.Start()
}

func printPorts(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	fmt.Printf("rtp: %d/udp\n", conf.Port)
	if conf.PrometheusPort != 0 {
		fmt.Printf("metrics: %d/tcp\n", conf.PrometheusPort)
	}
	return nil
}

func getConfig(c *cli.Context) (*config.Config, error) {
	confString, err := getConfigString(c.String("config"), c.String("config-body"))
	if err != nil {
		return nil, err
	}

	strictMode := true
	if c.Bool("disable-strict-config") {
		strictMode = false
	}

	conf, err := config.NewConfig(confString, strictMode)
	if err != nil {
		return nil, err
	}

	if c.Bool("dev") {
		conf.Development = true
		conf.Logging.Level = "debug"
	}
	if bind := c.String("bind"); bind != "" {
		conf.BindAddress = bind
	}
	if port := c.Uint("port"); port != 0 {
		conf.Port = uint32(port)
	}

	config.InitLoggerFromConfig(&conf.Logging)
	return conf, nil
}

func getConfigString(configFile string, inConfigBody string) (string, error) {
	if inConfigBody != "" || configFile == "" {
		return inConfigBody, nil
	}

	outConfigBody, err := os.ReadFile(configFile)
	if err != nil {
		return "", err
	}
	return string(outConfigBody), nil
}
