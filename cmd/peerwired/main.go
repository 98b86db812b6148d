// peerwired is a minimal embedding of the peerwire library: it listens for
// inbound peers, dials the configured ones and logs connections as they
// come and go. It exists to exercise the library surface end to end.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peerwire/peerwire"
	"github.com/peerwire/peerwire/infrastructure/logger"
	"github.com/peerwire/peerwire/registry"
	"github.com/peerwire/peerwire/transport"
	"github.com/peerwire/peerwire/version"
)

var log = logger.RegisterSubSystem("PWRD")

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	if cfg.Version {
		fmt.Printf("peerwired version %s\n", version.Version())
		os.Exit(0)
	}

	level, _ := logger.LevelFromString(cfg.LogLevel)
	err = logger.InitLog(cfg.LogFile, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %s\n", err)
		os.Exit(1)
	}
	defer logger.BackendLog.Close()

	err = run(cfg)
	if err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	managerConfig := &peerwire.Config{
		MaxInbound:  cfg.MaxInbound,
		MaxOutbound: cfg.MaxOutbound,
		OnConnectionAdded: func(info registry.ConnectionInfo) {
			log.Infof("Peer %s connected (%s, %s)", info.PeerID, info.Direction, info.RemoteAddress)
		},
		OnConnectionRemoved: func(id registry.ConnectionID) {
			log.Infof("Connection %d removed", id)
		},
	}
	if cfg.Proxy != "" {
		managerConfig.DialConfig = &transport.DialConfig{
			Proxy: &transport.ProxyConfig{
				Address:  cfg.Proxy,
				Username: cfg.ProxyUser,
				Password: cfg.ProxyPass,
			},
		}
	}
	for _, address := range cfg.Connect {
		managerConfig.InitialPeers = append(managerConfig.InitialPeers,
			peerwire.NetAddress{Kind: transport.KindTCP, Address: address})
	}

	manager, err := peerwire.New(managerConfig)
	if err != nil {
		return err
	}
	defer func() {
		err := manager.Close()
		if err != nil {
			log.Errorf("Error closing manager: %s", err)
		}
	}()
	log.Infof("peerwired %s running as %s", version.Version(), manager.LocalPeerID())

	for _, address := range cfg.Listen {
		err := manager.StartListener(transport.KindTCP, address)
		if err != nil {
			return err
		}
	}
	err = manager.ConnectInitialPeers()
	if err != nil {
		return err
	}

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-interruptChan
	log.Infof("Received signal %s, shutting down", sig)
	return nil
}
