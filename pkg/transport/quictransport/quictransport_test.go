package quictransport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
)

func testTLSConfig(asServer bool) *tls.Config {
	if !asServer {
		return &tls.Config{
			NextProtos:         []string{"strandweave/1"},
			InsecureSkipVerify: true,
		}
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"strandweave test"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:     []string{"localhost"},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{certDER},
			PrivateKey:  key,
		}},
		NextProtos: []string{"strandweave/1"},
	}
}

func TestSendThenRecvOverQUIC(t *testing.T) {
	ctx := context.Background()
	srv, err := ListenAndServe(ctx, "127.0.0.1:0", testTLSConfig(true))
	if err != nil {
		t.Fatalf("listen and serve: %v", err)
	}
	defer srv.Close()

	client := NewClient(srv.listener.Addr().String(), testTLSConfig(false))

	var addr address.Address
	addr.AppAddr[0] = 9

	if err := client.Send(ctx, addr, []byte("wire bytes")); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := client.Recv(ctx, addr)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if len(msgs) != 1 || string(msgs[0]) != "wire bytes" {
		t.Fatalf("unexpected recv result: %v", msgs)
	}
}

func TestRecvOnUnpublishedAddressIsEmpty(t *testing.T) {
	ctx := context.Background()
	srv, err := ListenAndServe(ctx, "127.0.0.1:0", testTLSConfig(true))
	if err != nil {
		t.Fatalf("listen and serve: %v", err)
	}
	defer srv.Close()

	client := NewClient(srv.listener.Addr().String(), testTLSConfig(false))
	msgs, err := client.Recv(ctx, address.Address{})
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}
