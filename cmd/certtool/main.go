// Command certtool is the offline mTLS provisioning helper: it generates an
// RSA keypair and a PKCS#10 certificate signing request covering this host's
// names and addresses, and can submit the CSR to a certificate authority
// endpoint. The server never runs this at startup; operators run it once and
// point the server at the resulting PEM files.
package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"secure-chat/pkg/logger"
)

func main() {
	outDir := flag.String("out", "certs", "output directory for key and CSR")
	commonName := flag.String("cn", "", "certificate common name (default: hostname)")
	org := flag.String("org", "secure-chat", "certificate organization")
	caURL := flag.String("ca", "", "CA endpoint to submit the CSR to (optional)")
	flag.Parse()

	if err := run(*outDir, *commonName, *org, *caURL); err != nil {
		logger.Fatal("certtool: %v", err)
	}
}

func run(outDir, commonName, org, caURL string) error {
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	if commonName == "" {
		commonName = hostname
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	dnsNames, ips := hostIdentifiers(hostname)
	template := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{org},
		},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return fmt.Errorf("create CSR: %w", err)
	}

	keyPath := filepath.Join(outDir, "server-key.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	csrPath := filepath.Join(outDir, "server.csr")
	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})
	if err := os.WriteFile(csrPath, csrPEM, 0o600); err != nil {
		return fmt.Errorf("write CSR: %w", err)
	}
	logger.Info("CSR generated at %s", csrPath)

	if caURL == "" {
		return nil
	}

	certPEM, err := submitCSR(caURL, csrPEM)
	if err != nil {
		return fmt.Errorf("submit CSR: %w", err)
	}
	certPath := filepath.Join(outDir, "server-cert.pem")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	logger.Info("certificate stored at %s", certPath)
	return nil
}

// hostIdentifiers collects the SAN entries: hostname, localhost and every
// IPv4 address on every interface.
func hostIdentifiers(hostname string) ([]string, []net.IP) {
	dnsNames := []string{hostname, "localhost"}
	ips := []net.IP{net.ParseIP("127.0.0.1")}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		logger.Error("listing interface addresses: %v", err)
		return dnsNames, ips
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
			ips = append(ips, ip4)
		}
	}
	return dnsNames, ips
}

// submitCSR posts the PEM-encoded CSR to the CA as multipart/form-data and
// returns the response body, expected to be the issued certificate in PEM.
func submitCSR(caURL string, csrPEM []byte) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("csr", "server.csr")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(csrPEM); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(caURL, writer.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CA responded with status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
