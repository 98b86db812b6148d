package transport

import (
	"net"
	"time"

	"github.com/btcsuite/go-socks/socks"
	"github.com/pkg/errors"
)

type tcpTransport struct{}

func (t *tcpTransport) Kind() Kind {
	return KindTCP
}

func (t *tcpTransport) Bind(address string) (Acceptor, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(ErrBindFailed, "listening on %s: %s", address, err)
	}
	log.Debugf("TCP acceptor bound to %s", listener.Addr())
	return listener, nil
}

func (t *tcpTransport) Dial(address string, config *DialConfig, timeout time.Duration) (net.Conn, error) {
	conn, err := dialTCP(address, config, timeout)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, errors.Wrapf(ErrDialTimedOut, "connecting to %s: %s", address, err)
		}
		return nil, errors.Wrapf(ErrDialFailed, "connecting to %s: %s", address, err)
	}
	return conn, nil
}

func dialTCP(address string, config *DialConfig, timeout time.Duration) (net.Conn, error) {
	if config != nil && config.Proxy != nil {
		proxy := &socks.Proxy{
			Addr:     config.Proxy.Address,
			Username: config.Proxy.Username,
			Password: config.Proxy.Password,
		}
		return proxy.DialTimeout("tcp", address, timeout)
	}
	return net.DialTimeout("tcp", address, timeout)
}
