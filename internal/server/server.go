// Package server owns the mutually-authenticated TLS transport: it accepts
// connections, enforces the client-certificate handshake and hands each
// authenticated stream to a chat connection handler.
package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	"secure-chat/internal/chat"
	"secure-chat/internal/config"
	"secure-chat/internal/logstore"
	"secure-chat/pkg/logger"
)

type Server struct {
	addr     string
	tlsCfg   *tls.Config
	registry *chat.Registry
	bus      *chat.Bus
	store    logstore.Store

	listener net.Listener
}

func New(addr string, tlsCfg *tls.Config, registry *chat.Registry, store logstore.Store) *Server {
	return &Server{
		addr:     addr,
		tlsCfg:   tlsCfg,
		registry: registry,
		bus:      chat.NewBus(),
		store:    store,
	}
}

// NewTLSConfig loads the server certificate and the CA pool used to verify
// client certificates. Client authentication is required: a connection
// without a valid certificate never reaches the chat layer.
func NewTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server key pair: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", cfg.ClientCAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Listen binds the TLS listener without serving yet, so tests and callers
// can learn the bound address.
func (s *Server) Listen() error {
	ln, err := tls.Listen("tcp", s.addr, s.tlsCfg)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, running one handler
// goroutine per connection. Handshake failures terminate only the offending
// connection.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	logger.Info("server listening on %s", s.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handle(ctx, conn)
	}
}

// ListenAndServe binds and serves in one call.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			logger.Error("tls handshake with %s failed: %v", conn.RemoteAddr(), err)
			conn.Close()
			return
		}
		logger.Info("client authenticated from %s", conn.RemoteAddr())
	}

	chat.NewHandler(conn, s.registry, s.bus, s.store).Run()
	logger.Debug("connection from %s closed", conn.RemoteAddr())
}
