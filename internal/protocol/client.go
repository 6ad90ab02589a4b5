// Package protocol implements the client side of the Minecraft Java Edition
// status exchange and a login probe used to classify server access policy.
package protocol

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/woozymasta/mclookup/internal/models"
)

// Defaults used when the corresponding Client field is zero.
const (
	DefaultTimeout  = 3 * time.Second
	DefaultProtocol = 47
	DefaultUsername = "mclookup"
)

// Client runs status and login probe exchanges. The zero value is usable.
type Client struct {
	// Timeout bounds each connect, read and write.
	Timeout time.Duration

	// Protocol is announced in the status handshake.
	Protocol int32

	// Username is the synthetic name sent in Login Start.
	Username string
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) protocol() int32 {
	if c.Protocol != 0 {
		return c.Protocol
	}
	return DefaultProtocol
}

func (c *Client) username() string {
	if c.Username != "" {
		return c.Username
	}
	return DefaultUsername
}

// session is one connection with per operation deadlines.
type session struct {
	conn    net.Conn
	rd      *bufio.Reader
	timeout time.Duration
	stop    func() bool
}

func (c *Client) open(ctx context.Context, addr netip.AddrPort) (*session, error) {
	d := net.Dialer{Timeout: c.timeout()}
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, Classify(err)
	}

	// cancellation unblocks pending reads and writes
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})

	return &session{
		conn:    conn,
		rd:      bufio.NewReader(conn),
		timeout: c.timeout(),
		stop:    stop,
	}, nil
}

func (s *session) close() {
	s.stop()
	_ = s.conn.Close()
}

func (s *session) write(ctx context.Context, frame []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return Classify(err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return ctxOr(ctx, err)
	}
	return nil
}

func (s *session) read(ctx context.Context) (int32, *bytes.Reader, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return 0, nil, Classify(err)
	}
	id, payload, err := readPacket(s.rd)
	if err != nil {
		return 0, nil, ctxOr(ctx, err)
	}
	return id, payload, nil
}

// Status performs the handshake and status exchange (phase A).
func (c *Client) Status(ctx context.Context, addr netip.AddrPort) (*models.Status, error) {
	s, err := c.open(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer s.close()

	frame := AppendHandshake(nil, c.protocol(), addr.Addr().String(), addr.Port(), StateStatus)
	frame = AppendStatusRequest(frame)
	if err := s.write(ctx, frame); err != nil {
		return nil, err
	}

	id, payload, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if id != idStatusResponse {
		return nil, protocolErrorf("unexpected status packet 0x%02x", id)
	}

	text, err := readString(payload)
	if err != nil {
		return nil, err
	}

	return DecodeStatus(text)
}

// ProbeAccess performs the login probe (phase B) announcing protocol, which should be
// the number the server reported in its status. The login is never completed.
// On error the returned class is AccessUndetermined.
func (c *Client) ProbeAccess(ctx context.Context, addr netip.AddrPort, protocol int32) (models.Access, error) {
	s, err := c.open(ctx, addr)
	if err != nil {
		return models.AccessUndetermined, err
	}
	defer s.close()

	frame := AppendHandshake(nil, protocol, addr.Addr().String(), addr.Port(), StateLogin)
	frame = AppendLoginStart(frame, protocol, c.username())
	if err := s.write(ctx, frame); err != nil {
		return models.AccessUndetermined, err
	}

	id, payload, err := s.read(ctx)
	if err != nil {
		return models.AccessUndetermined, err
	}

	return classifyLoginReply(id, payload)
}

func classifyLoginReply(id int32, payload *bytes.Reader) (models.Access, error) {
	switch id {
	case idEncryptionRequest:
		return models.AccessLicensed, nil
	case idLoginSuccess, idSetCompression:
		return models.AccessOpen, nil
	case idLoginDisconnect:
		text, err := readString(payload)
		if err != nil {
			return models.AccessUndetermined, err
		}
		reason := FlattenChat([]byte(text))
		if reason == "" {
			reason = text
		}
		if IsWhitelistReason(reason) {
			return models.AccessWhitelisted, nil
		}
		return models.AccessUndetermined, nil
	default:
		return models.AccessUndetermined, nil
	}
}

// ctxOr prefers the context error when the context ended the I/O.
func ctxOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Classify(ctxErr)
	}
	return Classify(err)
}
