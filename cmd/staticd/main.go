/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/caiflower/staticd/global"
	"github.com/caiflower/staticd/global/config"
	"github.com/caiflower/staticd/global/env"
	"github.com/caiflower/staticd/pkg/crontab"
	"github.com/caiflower/staticd/pkg/logger"
	"github.com/caiflower/staticd/pkg/tools"
	"github.com/caiflower/staticd/web/server"
)

const usage = `Usage: staticd [flags] [port [root]]

Serves the files below root over HTTP/1.x. Flags and positional arguments
override the yaml config file.

`

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	c, err := parseArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "staticd: %v\n", err)
		}
		return 2
	}

	logger.InitLogger(&c.LoggerConfig)
	defer logger.DefaultLogger().Close()
	logger.Info("staticd config: %s", tools.ToJson(c))

	if !tools.DirExist(c.ServerConfig.Root) {
		logger.Error("root directory %s does not exist", c.ServerConfig.Root)
		return 1
	}

	srv, err := server.NewServer(&c.ServerConfig)
	if err != nil {
		logger.Error("create server: %v", err)
		return 1
	}
	global.DefaultResourceManger.AddDaemon(srv)
	crontab.Start()

	if err = global.DefaultResourceManger.Signal(); err != nil {
		logger.Error("staticd failed to start: %v", err)
		return 1
	}
	return 0
}

// parseArgs loads the config file, then applies flags and positional
// arguments on top. Only flags given on the command line override the file.
func parseArgs(args []string, stderr io.Writer) (*config.DefaultConfig, error) {
	fs := flag.NewFlagSet("staticd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	configFile := fs.String("config", env.ConfigFile(), "yaml config file")
	host := fs.String("host", "", "listen host (default 127.0.0.1)")
	port := fs.Uint("port", 0, "listen port (default 7878)")
	root := fs.String("root", "", "directory to serve (default .)")
	workers := fs.Int("workers", 0, "worker pool size (default 4)")
	level := fs.String("level", "", "log level: TRACE, DEBUG, INFO, WARN, ERROR or FATAL")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errUsage
		}
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}

	c := &config.DefaultConfig{}
	if err := config.LoadConfig(*configFile, c); err != nil {
		return nil, fmt.Errorf("load config %s: %w", *configFile, err)
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			c.ServerConfig.Host = *host
		case "port":
			c.ServerConfig.Port = *port
		case "root":
			c.ServerConfig.Root = *root
		case "workers":
			if *workers < 1 {
				flagErr = fmt.Errorf("-workers must be at least 1, got %d", *workers)
			}
			c.ServerConfig.Workers = *workers
		case "level":
			lv := strings.ToUpper(*level)
			switch lv {
			case logger.TraceLevel, logger.DebugLevel, logger.InfoLevel, logger.WarnLevel, logger.ErrorLevel, logger.FatalLevel:
				c.LoggerConfig.Level = lv
			default:
				flagErr = fmt.Errorf("unknown -level %q", *level)
			}
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	// staticd 8080 ./public
	rest := fs.Args()
	if len(rest) > 2 {
		return nil, fmt.Errorf("too many arguments: %s", strings.Join(rest, " "))
	}
	if len(rest) > 0 {
		p, err := strconv.ParseUint(rest[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", rest[0])
		}
		c.ServerConfig.Port = uint(p)
	}
	if len(rest) > 1 {
		c.ServerConfig.Root = rest[1]
	}
	return c, nil
}
