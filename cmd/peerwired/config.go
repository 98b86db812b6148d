package main

import (
	"github.com/jessevdk/go-flags"
	"github.com/peerwire/peerwire/infrastructure/logger"
	"github.com/pkg/errors"
)

type config struct {
	Listen      []string `long:"listen" description:"Add a TCP address to listen on for inbound peers"`
	Connect     []string `long:"connect" description:"Add a TCP peer address to connect to on startup"`
	MaxInbound  uint32   `long:"maxinbound" default:"32" description:"Max number of inbound peer connections"`
	MaxOutbound uint32   `long:"maxoutbound" default:"8" description:"Max number of outbound peer connections"`
	Proxy       string   `long:"proxy" description:"Connect via SOCKS5 proxy (host:port)"`
	ProxyUser   string   `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass   string   `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	LogFile     string   `long:"logfile" description:"Write logs to this file in addition to stdout"`
	LogLevel    string   `long:"loglevel" short:"d" default:"info" description:"Logging level {trace, debug, info, warn, error, critical}"`
	Version     bool     `short:"V" long:"version" description:"Display version information and exit"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.Default)
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	if _, ok := logger.LevelFromString(cfg.LogLevel); !ok {
		return nil, errors.Errorf("invalid log level %q", cfg.LogLevel)
	}
	if len(cfg.Listen) == 0 && len(cfg.Connect) == 0 {
		return nil, errors.New("nothing to do: specify --listen and/or --connect")
	}
	return cfg, nil
}
