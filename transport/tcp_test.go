package transport

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestForKind(t *testing.T) {
	tr, err := ForKind(KindTCP)
	if err != nil {
		t.Fatalf("ForKind(KindTCP) failed: %+v", err)
	}
	if tr.Kind() != KindTCP {
		t.Fatalf("expected kind %s, got %s", KindTCP, tr.Kind())
	}

	_, err = ForKind(Kind(250))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got: %+v", err)
	}
}

func TestTCPBindDialRoundTrip(t *testing.T) {
	tr, err := ForKind(KindTCP)
	if err != nil {
		t.Fatalf("ForKind failed: %+v", err)
	}

	acceptor, err := tr.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind failed: %+v", err)
	}
	defer acceptor.Close()

	acceptedChan := make(chan error, 1)
	payload := []byte("ping")
	go func() {
		conn, err := acceptor.Accept()
		if err != nil {
			acceptedChan <- err
			return
		}
		defer conn.Close()
		_, err = conn.Write(payload)
		acceptedChan <- err
	}()

	conn, err := tr.Dial(acceptor.Addr().String(), nil, time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %+v", err)
	}
	defer conn.Close()

	received := make([]byte, len(payload))
	_, err = io.ReadFull(conn, received)
	if err != nil {
		t.Fatalf("reading from dialed connection failed: %+v", err)
	}
	if !bytes.Equal(received, payload) {
		t.Fatalf("expected to receive %q, got %q", payload, received)
	}
	err = <-acceptedChan
	if err != nil {
		t.Fatalf("accept side failed: %+v", err)
	}
}

func TestTCPBindOnTakenAddress(t *testing.T) {
	tr, err := ForKind(KindTCP)
	if err != nil {
		t.Fatalf("ForKind failed: %+v", err)
	}

	acceptor, err := tr.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind failed: %+v", err)
	}
	defer acceptor.Close()

	_, err = tr.Bind(acceptor.Addr().String())
	if !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed on a taken address, got: %+v", err)
	}
}

func TestTCPBindInvalidAddress(t *testing.T) {
	tr, err := ForKind(KindTCP)
	if err != nil {
		t.Fatalf("ForKind failed: %+v", err)
	}

	_, err = tr.Bind("not-an-address")
	if !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed on an invalid address, got: %+v", err)
	}
}

func TestTCPDialRefused(t *testing.T) {
	tr, err := ForKind(KindTCP)
	if err != nil {
		t.Fatalf("ForKind failed: %+v", err)
	}

	// Bind and immediately close to get an address that refuses connections.
	acceptor, err := tr.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind failed: %+v", err)
	}
	address := acceptor.Addr().String()
	err = acceptor.Close()
	if err != nil {
		t.Fatalf("closing acceptor failed: %+v", err)
	}

	_, err = tr.Dial(address, nil, time.Second)
	if !errors.Is(err, ErrDialFailed) {
		t.Fatalf("expected ErrDialFailed on a refused dial, got: %+v", err)
	}
	if errors.Is(err, ErrDialTimedOut) {
		t.Fatalf("refused dial was misreported as a timeout: %+v", err)
	}
}
