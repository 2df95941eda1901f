package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-chat/internal/chat"
	"secure-chat/internal/config"
	"secure-chat/internal/logstore"
	"secure-chat/internal/protocol"
)

// testPKI holds a throwaway CA plus server and client leaf certificates.
type testPKI struct {
	dir        string
	caPool     *x509.CertPool
	clientCert tls.Certificate
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	issue := func(serial int64, extUsage x509.ExtKeyUsage) ([]byte, *ecdsa.PrivateKey) {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		template := &x509.Certificate{
			SerialNumber: big.NewInt(serial),
			Subject:      pkix.Name{CommonName: "test-leaf"},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{extUsage},
			DNSNames:     []string{"localhost"},
			IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		}
		der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
		require.NoError(t, err)
		return der, key
	}

	writePEM := func(name, blockType string, der []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0o600))
		return path
	}

	serverDER, serverKey := issue(2, x509.ExtKeyUsageServerAuth)
	serverKeyDER, err := x509.MarshalECPrivateKey(serverKey)
	require.NoError(t, err)
	writePEM("server-cert.pem", "CERTIFICATE", serverDER)
	writePEM("server-key.pem", "EC PRIVATE KEY", serverKeyDER)
	writePEM("client-ca.pem", "CERTIFICATE", caDER)

	clientDER, clientKey := issue(3, x509.ExtKeyUsageClientAuth)
	clientKeyDER, err := x509.MarshalECPrivateKey(clientKey)
	require.NoError(t, err)
	clientCert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: clientDER}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: clientKeyDER}),
	)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	return &testPKI{dir: dir, caPool: pool, clientCert: clientCert}
}

func startTestServer(t *testing.T, pki *testPKI) *Server {
	t.Helper()

	tlsCfg, err := NewTLSConfig(config.TLSConfig{
		CertFile:     filepath.Join(pki.dir, "server-cert.pem"),
		KeyFile:      filepath.Join(pki.dir, "server-key.pem"),
		ClientCAFile: filepath.Join(pki.dir, "client-ca.pem"),
	})
	require.NoError(t, err)

	key := make([]byte, 16)
	_, err = rand.Read(key)
	require.NoError(t, err)
	store, err := logstore.New(base64.StdEncoding.EncodeToString(key), t.TempDir())
	require.NoError(t, err)

	srv := New("127.0.0.1:0", tlsCfg, chat.NewRegistry(), store)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return srv
}

func dialClient(t *testing.T, srv *Server, pki *testPKI) *tls.Conn {
	t.Helper()
	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{
		Certificates: []tls.Certificate{pki.clientCert},
		RootCAs:      pki.caPool,
		ServerName:   "localhost",
	})
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn net.Conn) *protocol.Packet {
	t.Helper()
	pkt, err := protocol.Read(conn)
	require.NoError(t, err)
	return pkt
}

func TestEndToEndOverMutualTLS(t *testing.T) {
	pki := newTestPKI(t)
	srv := startTestServer(t, pki)

	clientA := dialClient(t, srv, pki)
	clientB := dialClient(t, srv, pki)

	// A creates a room.
	require.NoError(t, protocol.Write(clientA, protocol.CreateRoom()))
	ack := readPacket(t, clientA)
	require.Equal(t, protocol.OpCreateRoomAck, ack.Opcode)
	code, ok := ack.Str(protocol.FieldRoomCode)
	require.True(t, ok)
	require.Regexp(t, `^\d{6}$`, code)

	// A joins, then B joins and A sees the notice.
	join := protocol.JoinRoom(code).AddStr(protocol.FieldUsername, "alice")
	require.NoError(t, protocol.Write(clientA, join))
	require.Equal(t, protocol.OpJoinRoomAck, readPacket(t, clientA).Opcode)

	join = protocol.JoinRoom(code).AddStr(protocol.FieldUsername, "bob")
	require.NoError(t, protocol.Write(clientB, join))
	joined := readPacket(t, clientA)
	require.Equal(t, protocol.OpUserJoined, joined.Opcode)
	name, _ := joined.Str(protocol.FieldUsername)
	assert.Equal(t, "bob", name)
	require.Equal(t, protocol.OpJoinRoomAck, readPacket(t, clientB).Opcode)

	// B chats; both receive the fan-out.
	require.NoError(t, protocol.Write(clientB, protocol.ChatSend("hi")))
	for _, conn := range []*tls.Conn{clientA, clientB} {
		bc := readPacket(t, conn)
		require.Equal(t, protocol.OpChatBroadcast, bc.Opcode)
		msg, _ := bc.Str(protocol.FieldMessage)
		assert.Equal(t, "hi", msg)
		sender, _ := bc.Str(protocol.FieldUsername)
		assert.Equal(t, "bob", sender)
	}

	// B leaves: echoed LEAVE to B, USER_LEFT to A.
	require.NoError(t, protocol.Write(clientB, protocol.Leave()))
	assert.Equal(t, protocol.OpLeave, readPacket(t, clientB).Opcode)
	left := readPacket(t, clientA)
	require.Equal(t, protocol.OpUserLeft, left.Opcode)
	name, _ = left.Str(protocol.FieldUsername)
	assert.Equal(t, "bob", name)
}

func TestRejectsClientWithoutCertificate(t *testing.T) {
	pki := newTestPKI(t)
	srv := startTestServer(t, pki)

	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{
		RootCAs:    pki.caPool,
		ServerName: "localhost",
	})
	if err != nil {
		return // rejected during the handshake
	}
	defer conn.Close()

	// Depending on TLS version the rejection may surface on first use.
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := protocol.Write(conn, protocol.Heartbeat()); err != nil {
		return
	}
	_, err = protocol.Read(conn)
	assert.Error(t, err)
}

func TestNewTLSConfigErrors(t *testing.T) {
	pki := newTestPKI(t)

	_, err := NewTLSConfig(config.TLSConfig{
		CertFile:     "missing.pem",
		KeyFile:      "missing.pem",
		ClientCAFile: filepath.Join(pki.dir, "client-ca.pem"),
	})
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not pem"), 0o600))
	_, err = NewTLSConfig(config.TLSConfig{
		CertFile:     filepath.Join(pki.dir, "server-cert.pem"),
		KeyFile:      filepath.Join(pki.dir, "server-key.pem"),
		ClientCAFile: garbage,
	})
	assert.Error(t, err)
}
