// Package testutil provides fixtures shared by package tests: a scripted game
// server listener, a temporary database and a silent logger.
package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/woozymasta/mclookup/internal/protocol"
)

// LoginReply selects how the fake server answers a Login Start.
type LoginReply int

// Scripted login replies.
const (
	LoginEncryption LoginReply = iota
	LoginSuccess
	LoginDisconnect
	LoginSilent
	LoginCompression
	LoginPluginRequest
)

// StatusJSON renders a status reply with the given players sample.
func StatusJSON(version string, protocolNum, online, maxPlayers int, sample map[string]string) string {
	type player struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	doc := map[string]any{
		"version":     map[string]any{"name": version, "protocol": protocolNum},
		"description": map[string]any{"text": "A Minecraft Server"},
	}
	players := map[string]any{"online": online, "max": maxPlayers}
	if len(sample) > 0 {
		list := make([]player, 0, len(sample))
		for id, name := range sample {
			list = append(list, player{ID: id, Name: name})
		}
		players["sample"] = list
	}
	doc["players"] = players

	out, _ := json.Marshal(doc)
	return string(out)
}

// MinecraftServer is a scripted status/login endpoint bound to loopback.
type MinecraftServer struct {
	ln net.Listener

	mu               sync.Mutex
	status           string
	statusSilent     bool
	login            LoginReply
	disconnectReason string

	statusCount atomic.Int32
	loginCount  atomic.Int32
	wg          sync.WaitGroup
	done        chan struct{}
}

// NewMinecraftServer starts a server answering status with statusJSON and
// logins with reply. It is closed on test cleanup.
func NewMinecraftServer(t *testing.T, statusJSON string, reply LoginReply) *MinecraftServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &MinecraftServer{
		ln:     ln,
		status: statusJSON,
		login:  reply,
		done:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)

	return s
}

// SetDisconnectReason sets the JSON reason sent for LoginDisconnect.
func (s *MinecraftServer) SetDisconnectReason(reason string) {
	s.mu.Lock()
	s.disconnectReason = reason
	s.mu.Unlock()
}

// SetStatusSilent makes the server accept status requests and never answer.
func (s *MinecraftServer) SetStatusSilent(silent bool) {
	s.mu.Lock()
	s.statusSilent = silent
	s.mu.Unlock()
}

// AddrPort returns the listening address.
func (s *MinecraftServer) AddrPort() netip.AddrPort {
	return netip.MustParseAddrPort(s.ln.Addr().String())
}

// StatusCount is the number of status exchanges served.
func (s *MinecraftServer) StatusCount() int { return int(s.statusCount.Load()) }

// LoginCount is the number of login probes received.
func (s *MinecraftServer) LoginCount() int { return int(s.loginCount.Load()) }

// Close stops the listener and waits for open connections to finish.
func (s *MinecraftServer) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *MinecraftServer) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *MinecraftServer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	// unblock reads when the server shuts down
	go func() {
		<-s.done
		_ = conn.Close()
	}()

	rd := bufio.NewReader(conn)
	hs, err := readFrame(rd)
	if err != nil {
		return
	}
	next, err := handshakeNextState(hs)
	if err != nil {
		return
	}

	s.mu.Lock()
	status, silent, login, reason := s.status, s.statusSilent, s.login, s.disconnectReason
	s.mu.Unlock()

	if _, err := readFrame(rd); err != nil {
		return
	}

	switch next {
	case protocol.StateStatus:
		s.statusCount.Add(1)
		if silent {
			_, _ = io.Copy(io.Discard, rd)
			return
		}
		_, _ = conn.Write(frame(0x00, stringField(status)))

	case protocol.StateLogin:
		s.loginCount.Add(1)
		switch login {
		case LoginEncryption:
			payload := stringField("")
			payload = append(payload, protocol.AppendVarInt(nil, 4)...)
			payload = append(payload, 1, 2, 3, 4)
			payload = append(payload, protocol.AppendVarInt(nil, 4)...)
			payload = append(payload, 5, 6, 7, 8)
			_, _ = conn.Write(frame(0x01, payload))
		case LoginSuccess:
			_, _ = conn.Write(frame(0x02, make([]byte, 16)))
		case LoginDisconnect:
			_, _ = conn.Write(frame(0x00, stringField(reason)))
		case LoginSilent:
			_, _ = io.Copy(io.Discard, rd)
		case LoginCompression:
			_, _ = conn.Write(frame(0x03, protocol.AppendVarInt(nil, 256)))
		case LoginPluginRequest:
			payload := protocol.AppendVarInt(nil, 1) // message id
			payload = append(payload, stringField("velocity:player_info")...)
			_, _ = conn.Write(frame(0x04, payload))
		}
	}
}

func readFrame(rd *bufio.Reader) (*bytes.Reader, error) {
	n, err := protocol.ReadVarInt(rd)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func handshakeNextState(r *bytes.Reader) (int32, error) {
	if _, err := protocol.ReadVarInt(r); err != nil { // packet id
		return 0, err
	}
	if _, err := protocol.ReadVarInt(r); err != nil { // protocol
		return 0, err
	}
	hostLen, err := protocol.ReadVarInt(r)
	if err != nil {
		return 0, err
	}
	if _, err := r.Seek(int64(hostLen)+2, io.SeekCurrent); err != nil {
		return 0, err
	}
	return protocol.ReadVarInt(r)
}

func stringField(s string) []byte {
	return append(protocol.AppendVarInt(nil, int32(len(s))), s...)
}

func frame(id int32, payload []byte) []byte {
	body := append(protocol.AppendVarInt(nil, id), payload...)
	return append(protocol.AppendVarInt(nil, int32(len(body))), body...)
}

// ClosedAddrPort returns a loopback address where nothing listens, so every
// connection attempt is refused.
func ClosedAddrPort(t *testing.T) netip.AddrPort {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := netip.MustParseAddrPort(ln.Addr().String())
	_ = ln.Close()

	return addr
}
