// Command strandctl is a command-line front end for one user's participation
// in a multi-branch authenticated stream: creating streams, inviting and
// subscribing, issuing keyloads, publishing packets, and draining newly
// available messages, all against a state file persisted between runs.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/persist"
	"github.com/WebFirstLanguage/strandweave/pkg/syncloop"
	"github.com/WebFirstLanguage/strandweave/pkg/transport/quictransport"
	"github.com/WebFirstLanguage/strandweave/pkg/user"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "help", "--help", "-h":
		printUsage()
		return
	case "keygen":
		err = keygenCommand(os.Args[2:])
	case "serve":
		err = serveCommand(os.Args[2:])
	case "create":
		err = createCommand(os.Args[2:])
	case "invite":
		err = inviteCommand(os.Args[2:])
	case "join":
		err = joinCommand(os.Args[2:])
	case "subscribe":
		err = subscribeCommand(os.Args[2:])
	case "register-psk":
		err = registerPSKCommand(os.Args[2:])
	case "keyload":
		err = keyloadCommand(os.Args[2:])
	case "send":
		err = sendCommand(os.Args[2:])
	case "sync":
		err = syncCommand(os.Args[2:])
	default:
		fmt.Printf("unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "strandctl: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`strandctl - multi-branch authenticated stream client

Usage:
  strandctl <command> [options]

Commands:
  keygen        --state <path>                            generate a new identity and an empty state file
  serve         --listen <addr>                            run a transport server
  create        --state <path> --server <addr> --topic <name>
  invite        --state <path> --app <hex>                 print an invite string for a stream this user authored
  join          --state <path> --server <addr> --invite <string>
  subscribe     --state <path> --server <addr> --app <hex>
  register-psk  --state <path> --app <hex> --psk <hex32>
  keyload       --state <path> --server <addr> --app <hex> --topic <name> --recipient <hex>...
  send          --state <path> --server <addr> --app <hex> --topic <name> [--public <text>] [--masked <text>]
  sync          --state <path> --server <addr> --app <hex> --topic <name>
`)
}

// --- flag parsing ---------------------------------------------------------

type flagSet struct {
	values   map[string]string
	repeated map[string][]string
}

func parseFlags(args []string, repeatedNames ...string) *flagSet {
	repeated := make(map[string]bool, len(repeatedNames))
	for _, n := range repeatedNames {
		repeated[n] = true
	}
	fs := &flagSet{values: make(map[string]string), repeated: make(map[string][]string)}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		val := ""
		if i+1 < len(args) {
			val = args[i+1]
			i++
		}
		if repeated[name] {
			fs.repeated[name] = append(fs.repeated[name], val)
		} else {
			fs.values[name] = val
		}
	}
	return fs
}

func (f *flagSet) get(name, def string) string {
	if v, ok := f.values[name]; ok {
		return v
	}
	return def
}

func (f *flagSet) require(name string) (string, error) {
	v, ok := f.values[name]
	if !ok || v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}

// --- state file ------------------------------------------------------------

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "strandctl.state"
	}
	return filepath.Join(home, ".strandctl", "state")
}

func loadState(path string, transport bus.Transport) (*user.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file %s: %w", path, err)
	}
	return persist.Load(data, transport)
}

func saveState(path string, u *user.User) error {
	data, err := persist.Save(u)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func dialTransport(serverAddr string) bus.Transport {
	return quictransport.NewClient(serverAddr, insecureClientTLS())
}

func insecureClientTLS() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"strandweave/1"}}
}

// serverTLSConfig generates a throwaway self-signed certificate for the
// lifetime of this process. A real deployment would load a long-lived
// certificate instead.
func serverTLSConfig() *tls.Config {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("strandctl: generate server key: %v", err))
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"strandctl"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:     []string{"localhost"},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		panic(fmt.Sprintf("strandctl: generate server certificate: %v", err))
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{certDER}, PrivateKey: key}},
		NextProtos:   []string{"strandweave/1"},
	}
}

// --- commands ---------------------------------------------------------------

func keygenCommand(args []string) error {
	fs := parseFlags(args)
	statePath := fs.get("state", defaultStatePath())

	id := mustGenerateIdentity()
	u := user.New(id, nil)
	if err := saveState(statePath, u); err != nil {
		return err
	}
	fmt.Printf("generated identity %s\n", id.Identifier())
	fmt.Printf("state written to %s\n", statePath)
	return nil
}

func mustGenerateIdentity() *identity.Ed25519Identity {
	id, err := identity.GenerateEd25519Identity()
	if err != nil {
		// crypto/rand failing is not a condition this CLI can recover
		// from; every subsequent command would fail the same way.
		panic(fmt.Sprintf("strandctl: generate identity: %v", err))
	}
	return id
}

func serveCommand(args []string) error {
	fs := parseFlags(args)
	listen, err := fs.require("listen")
	if err != nil {
		return err
	}

	ctx := context.Background()
	server, err := quictransport.ListenAndServe(ctx, listen, serverTLSConfig())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer server.Close()

	fmt.Printf("serving on %s\n", listen)
	select {}
}

func createCommand(args []string) error {
	fs := parseFlags(args)
	statePath := fs.get("state", defaultStatePath())
	serverAddr, err := fs.require("server")
	if err != nil {
		return err
	}
	topic, err := fs.require("topic")
	if err != nil {
		return err
	}

	transport := dialTransport(serverAddr)
	u, err := loadState(statePath, transport)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appAddr, err := u.CreateStream(ctx, topic)
	if err != nil {
		return fmt.Errorf("create_stream: %w", err)
	}
	if err := saveState(statePath, u); err != nil {
		return err
	}
	fmt.Printf("app_addr=%s\n", hex.EncodeToString(appAddr[:]))
	return nil
}

// invite packages (author identifier, app_addr, base_topic) into a single
// string a subscriber can hand to join, standing in for whatever
// out-of-band channel the two parties share.
func inviteCommand(args []string) error {
	fs := parseFlags(args)
	statePath := fs.get("state", defaultStatePath())
	appHex, err := fs.require("app")
	if err != nil {
		return err
	}
	appAddr, err := parseAppAddr(appHex)
	if err != nil {
		return err
	}

	u, err := loadState(statePath, nil)
	if err != nil {
		return err
	}
	stream, ok := u.Streams[appAddr]
	if !ok {
		return fmt.Errorf("no stream %s in local state", appHex)
	}

	var buf []byte
	buf = append(buf, appAddr[:]...)
	idBytes := stream.AuthorID.Encode()
	buf = append(buf, byte(len(idBytes)))
	buf = append(buf, idBytes...)
	buf = append(buf, stream.BaseTopic.Bytes()...)

	fmt.Println(base64.RawURLEncoding.EncodeToString(buf))
	return nil
}

func joinCommand(args []string) error {
	fs := parseFlags(args)
	statePath := fs.get("state", defaultStatePath())
	serverAddr, err := fs.require("server")
	if err != nil {
		return err
	}
	inviteStr, err := fs.require("invite")
	if err != nil {
		return err
	}

	raw, err := base64.RawURLEncoding.DecodeString(inviteStr)
	if err != nil {
		return fmt.Errorf("decode invite: %w", err)
	}
	if len(raw) < 32+1 {
		return fmt.Errorf("invite string is too short")
	}
	var appAddr address.AppAddr
	copy(appAddr[:], raw[:32])
	idLen := int(raw[32])
	if len(raw) < 33+idLen {
		return fmt.Errorf("invite string is truncated")
	}
	authorID, _, err := identity.DecodeIdentifier(raw[33 : 33+idLen])
	if err != nil {
		return fmt.Errorf("decode invite author: %w", err)
	}
	topic, err := address.TopicFromBytes(raw[33+idLen:])
	if err != nil {
		return fmt.Errorf("decode invite topic: %w", err)
	}

	transport := dialTransport(serverAddr)
	u, err := loadState(statePath, transport)
	if err != nil {
		return err
	}

	announceAddr := address.Address{
		AppAddr: appAddr,
		MsgID:   address.DeriveMsgID(appAddr, authorID, topic, 0),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := u.ReceiveAnnouncement(ctx, announceAddr); err != nil {
		return fmt.Errorf("receive_announcement: %w", err)
	}
	if err := saveState(statePath, u); err != nil {
		return err
	}
	fmt.Printf("joined stream app_addr=%s author=%s topic=%s\n", hex.EncodeToString(appAddr[:]), authorID, topic)
	return nil
}

func subscribeCommand(args []string) error {
	fs := parseFlags(args)
	statePath := fs.get("state", defaultStatePath())
	serverAddr, err := fs.require("server")
	if err != nil {
		return err
	}
	appHex, err := fs.require("app")
	if err != nil {
		return err
	}
	appAddr, err := parseAppAddr(appHex)
	if err != nil {
		return err
	}

	transport := dialTransport(serverAddr)
	u, err := loadState(statePath, transport)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	addr, err := u.Subscribe(ctx, appAddr)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := saveState(statePath, u); err != nil {
		return err
	}
	fmt.Printf("subscribed, msg_id=%x\n", addr.MsgID)
	return nil
}

func registerPSKCommand(args []string) error {
	fs := parseFlags(args)
	statePath := fs.get("state", defaultStatePath())
	appHex, err := fs.require("app")
	if err != nil {
		return err
	}
	appAddr, err := parseAppAddr(appHex)
	if err != nil {
		return err
	}
	pskHex, err := fs.require("psk")
	if err != nil {
		return err
	}
	pskBytes, err := hex.DecodeString(pskHex)
	if err != nil || len(pskBytes) != 32 {
		return fmt.Errorf("--psk must be 32 bytes of hex")
	}
	var psk [32]byte
	copy(psk[:], pskBytes)

	u, err := loadState(statePath, nil)
	if err != nil {
		return err
	}
	stream, ok := u.Streams[appAddr]
	if !ok {
		return fmt.Errorf("no stream %s in local state", appHex)
	}
	id := stream.Store.RegisterPSK(psk)
	if err := saveState(statePath, u); err != nil {
		return err
	}
	fmt.Printf("registered psk recipient %s\n", id)
	return nil
}

func keyloadCommand(args []string) error {
	fs := parseFlags(args, "recipient")
	statePath := fs.get("state", defaultStatePath())
	serverAddr, err := fs.require("server")
	if err != nil {
		return err
	}
	appHex, err := fs.require("app")
	if err != nil {
		return err
	}
	appAddr, err := parseAppAddr(appHex)
	if err != nil {
		return err
	}
	topicName, err := fs.require("topic")
	if err != nil {
		return err
	}
	topic, err := address.NewTopic(topicName)
	if err != nil {
		return err
	}

	recipients := make([]identity.Identifier, 0, len(fs.repeated["recipient"]))
	for _, hexID := range fs.repeated["recipient"] {
		raw, err := hex.DecodeString(hexID)
		if err != nil {
			return fmt.Errorf("decode recipient %q: %w", hexID, err)
		}
		id, _, err := identity.DecodeIdentifier(raw)
		if err != nil {
			return fmt.Errorf("decode recipient %q: %w", hexID, err)
		}
		recipients = append(recipients, id)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("at least one --recipient is required")
	}

	transport := dialTransport(serverAddr)
	u, err := loadState(statePath, transport)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	addr, err := u.SendKeyload(ctx, appAddr, topic, recipients)
	if err != nil {
		return fmt.Errorf("send_keyload: %w", err)
	}
	if err := saveState(statePath, u); err != nil {
		return err
	}
	fmt.Printf("keyload sent, msg_id=%x\n", addr.MsgID)
	return nil
}

func sendCommand(args []string) error {
	fs := parseFlags(args)
	statePath := fs.get("state", defaultStatePath())
	serverAddr, err := fs.require("server")
	if err != nil {
		return err
	}
	appHex, err := fs.require("app")
	if err != nil {
		return err
	}
	appAddr, err := parseAppAddr(appHex)
	if err != nil {
		return err
	}
	topicName, err := fs.require("topic")
	if err != nil {
		return err
	}
	topic, err := address.NewTopic(topicName)
	if err != nil {
		return err
	}
	public := []byte(fs.get("public", ""))
	masked := []byte(fs.get("masked", ""))

	transport := dialTransport(serverAddr)
	u, err := loadState(statePath, transport)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var addr address.Address
	if len(masked) > 0 {
		addr, err = u.SendSignedPacket(ctx, appAddr, topic, public, masked)
	} else {
		addr, err = u.SendTaggedPacket(ctx, appAddr, topic, public, masked)
	}
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := saveState(statePath, u); err != nil {
		return err
	}
	fmt.Printf("sent, msg_id=%x\n", addr.MsgID)
	return nil
}

func syncCommand(args []string) error {
	fs := parseFlags(args)
	statePath := fs.get("state", defaultStatePath())
	serverAddr, err := fs.require("server")
	if err != nil {
		return err
	}
	appHex, err := fs.require("app")
	if err != nil {
		return err
	}
	appAddr, err := parseAppAddr(appHex)
	if err != nil {
		return err
	}
	topicName, err := fs.require("topic")
	if err != nil {
		return err
	}
	topic, err := address.NewTopic(topicName)
	if err != nil {
		return err
	}

	transport := dialTransport(serverAddr)
	u, err := loadState(statePath, transport)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	received, err := syncloop.FetchNext(ctx, u, appAddr, topic)
	if err != nil {
		return fmt.Errorf("fetch_next: %w", err)
	}
	if err := saveState(statePath, u); err != nil {
		return err
	}

	for _, r := range received {
		printReceived(r)
	}
	fmt.Printf("drained %d message(s)\n", len(received))
	return nil
}

func printReceived(r user.Received) {
	switch {
	case r.Announce != nil:
		fmt.Printf("[%d] announce from %s\n", r.Sequence, r.Publisher)
	case r.Subscribe != nil:
		fmt.Printf("[%d] subscribe from %s\n", r.Sequence, r.Publisher)
	case r.Unsubscribe != nil:
		fmt.Printf("[%d] unsubscribe from %s\n", r.Sequence, r.Publisher)
	case r.Keyload != nil:
		fmt.Printf("[%d] keyload from %s authorized=%v\n", r.Sequence, r.Publisher, r.Keyload.Authorized)
	case r.SignedPacket != nil:
		fmt.Printf("[%d] signed_packet from %s public=%q masked=%q\n", r.Sequence, r.Publisher, r.SignedPacket.PublicPayload, r.SignedPacket.MaskedPayload)
	case r.TaggedPacket != nil:
		fmt.Printf("[%d] tagged_packet from %s public=%q masked=%q\n", r.Sequence, r.Publisher, r.TaggedPacket.PublicPayload, r.TaggedPacket.MaskedPayload)
	}
}

func parseAppAddr(s string) (address.AppAddr, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return address.AppAddr{}, fmt.Errorf("--app must be 32 bytes of hex")
	}
	var out address.AppAddr
	copy(out[:], raw)
	return out, nil
}
