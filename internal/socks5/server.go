// Package socks5 provides a CONNECT-only SOCKS5 relay. Run on a host inside
// a private network, it lets `nagcheck --socks5` reach services that only
// resolve and route from there.
package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"
)

const (
	socks5Version = 0x05
	cmdConnect    = 0x01
	atypIPv4      = 0x01
	atypDomain    = 0x03
	atypIPv6      = 0x04
	authNone      = 0x00
	authNoAccept  = 0xFF

	repSuccess          = 0x00
	repGeneralFailure   = 0x01
	repNotAllowed       = 0x02
	repHostUnreachable  = 0x04
	repConnRefused      = 0x05
	repCmdNotSupported  = 0x07
	repAddrNotSupported = 0x08
)

const (
	defaultAddr        = ":1080"
	defaultDialTimeout = 10 * time.Second
	handshakeTimeout   = 10 * time.Second
)

// Server is a SOCKS5 relay that supports CONNECT with no authentication.
// Names are resolved on the relay side.
type Server struct {
	Addr        string        // listen address, default ":1080"
	DialTimeout time.Duration // default 10s
	// Allow decides whether a destination may be reached. Nil allows all.
	Allow func(host string, port int) bool
}

// ListenAndServe listens on s.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = defaultAddr
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts relay connections on ln until ctx is cancelled. It closes ln
// and returns once every open relay has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() }) //nolint:errcheck // unblocks Accept
	defer stop()

	slog.Info("socks5 relay listening", "addr", ln.Addr().String())

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Debug("socks5 accept", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() }) //nolint:errcheck // ends the relay on shutdown
	defer stop()

	conn.SetDeadline(time.Now().Add(handshakeTimeout)) //nolint:errcheck // best-effort bound on the handshake
	if err := negotiate(conn); err != nil {
		slog.Debug("socks5 negotiation failed", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}
	target, err := s.connect(ctx, conn)
	if err != nil {
		slog.Debug("socks5 connect failed", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}
	defer target.Close()
	stopTarget := context.AfterFunc(ctx, func() { target.Close() }) //nolint:errcheck // ends the relay on shutdown
	defer stopTarget()
	conn.SetDeadline(time.Time{}) //nolint:errcheck // relay runs until either side closes

	relay(conn, target)
}

// negotiate performs the version/method handshake, accepting only no-auth.
func negotiate(conn net.Conn) error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	if header[0] != socks5Version {
		return fmt.Errorf("unsupported SOCKS version %d", header[0])
	}

	methods := make([]byte, header[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return err
	}
	for _, m := range methods {
		if m == authNone {
			_, err := conn.Write([]byte{socks5Version, authNone})
			return err
		}
	}

	conn.Write([]byte{socks5Version, authNoAccept}) //nolint:errcheck // closing anyway
	return errors.New("no acceptable auth method")
}

// connect reads a CONNECT request, dials the destination and replies.
func (s *Server) connect(ctx context.Context, conn net.Conn) (net.Conn, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	if header[0] != socks5Version {
		sendReply(conn, repGeneralFailure)
		return nil, fmt.Errorf("unsupported SOCKS version %d in request", header[0])
	}
	if header[1] != cmdConnect {
		sendReply(conn, repCmdNotSupported)
		return nil, fmt.Errorf("unsupported command 0x%02x", header[1])
	}

	host, port, err := readAddr(conn, header[3])
	if err != nil {
		sendReply(conn, repAddrNotSupported)
		return nil, err
	}
	if s.Allow != nil && !s.Allow(host, port) {
		sendReply(conn, repNotAllowed)
		return nil, fmt.Errorf("destination %s:%d not allowed", host, port)
	}

	timeout := s.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	target, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		sendReply(conn, replyFor(err))
		return nil, err
	}
	sendReply(conn, repSuccess)
	return target, nil
}

// replyFor maps a dial error to a SOCKS5 reply code.
func replyFor(err error) byte {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return repConnRefused
	case errors.As(err, &dnsErr):
		return repHostUnreachable
	default:
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return repHostUnreachable
		}
		return repGeneralFailure
	}
}

// readAddr parses a destination address of the given type.
func readAddr(r io.Reader, atyp byte) (string, int, error) {
	var host string
	switch atyp {
	case atypIPv4:
		buf := make([]byte, net.IPv4len)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", 0, err
		}
		host = net.IP(buf).String()
	case atypIPv6:
		buf := make([]byte, net.IPv6len)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", 0, err
		}
		host = net.IP(buf).String()
	case atypDomain:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return "", 0, err
		}
		if lenBuf[0] == 0 {
			return "", 0, errors.New("empty domain name")
		}
		domain := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(r, domain); err != nil {
			return "", 0, err
		}
		host = string(domain)
	default:
		return "", 0, fmt.Errorf("unsupported address type: 0x%02x", atyp)
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, portBuf); err != nil {
		return "", 0, err
	}
	return host, int(binary.BigEndian.Uint16(portBuf)), nil
}

// sendReply writes a reply with a 0.0.0.0:0 bound address; clients ignore it.
func sendReply(conn net.Conn, rep byte) {
	reply := []byte{socks5Version, rep, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	conn.Write(reply) //nolint:errcheck // best-effort reply
}

type closeWriter interface {
	CloseWrite() error
}

// relay copies in both directions. When one side finishes sending, the
// other side's write half is closed so its reader sees EOF.
func relay(client, target net.Conn) {
	var wg sync.WaitGroup
	pipe := func(dst, src net.Conn) {
		defer wg.Done()
		io.Copy(dst, src) //nolint:errcheck // relay best-effort
		if cw, ok := dst.(closeWriter); ok {
			cw.CloseWrite() //nolint:errcheck // peer may already be gone
		} else {
			dst.Close() //nolint:errcheck // no half-close available
		}
	}
	wg.Add(2)
	go pipe(target, client)
	go pipe(client, target)
	wg.Wait()
}
