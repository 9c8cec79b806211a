package server

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lab1702/battleship-web/game"
)

const (
	// Outbound frame buffer per session; a consumer that falls this far
	// behind is dropped rather than blocking the producing handler.
	sendBufferSize = 64

	// Maximum accepted frame length.
	maxFrameSize = 64 * 1024

	writeTimeout = 10 * time.Second

	// Chat forwarding limits per session
	chatRate  = rate.Limit(5)
	chatBurst = 10
)

// Status is the lifecycle state of a connection session.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusInLobby
	StatusInGame
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "OFFLINE"
	case StatusOnline:
		return "ONLINE"
	case StatusInLobby:
		return "IN_LOBBY"
	case StatusInGame:
		return "IN_GAME"
	}
	return "UNKNOWN"
}

// wireConn abstracts the transport under a session so the same session
// loop serves plain TCP and the WebSocket gateway.
type wireConn interface {
	// ReadLine blocks until one complete frame line is available.
	ReadLine() ([]byte, error)
	WriteFrame(*ServerFrame) error
	Close() error
	RemoteAddr() net.Addr
}

// tcpConn frames newline-delimited JSON over a plain TCP connection.
type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

func newTCPConn(conn net.Conn) *tcpConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxFrameSize)
	return &tcpConn{conn: conn, scanner: scanner}
}

func (c *tcpConn) ReadLine() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, net.ErrClosed
	}
	// Tolerate CRLF line endings
	return bytes.TrimRight(c.scanner.Bytes(), "\r"), nil
}

func (c *tcpConn) WriteFrame(f *ServerFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err = c.conn.Write(data)
	return err
}

func (c *tcpConn) Close() error { return c.conn.Close() }

func (c *tcpConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Session is the in-memory state for one connected client.
//
// Identity, status, matchmaking and pairing fields are guarded by the
// server mutex. Board, ready and isTurn belong to the handler goroutine
// outside a game and are guarded by the GameSession mutex while one is
// active.
type Session struct {
	id     int64
	server *Server
	conn   wireConn

	send      chan ServerFrame
	done      chan struct{}
	closeOnce sync.Once

	username   string
	status     Status
	token      string
	rating     int
	lastActive time.Time
	pingMs     int

	matching    bool
	queueSeq    int64
	pendingWith *Session
	matchReady  bool
	pairedAt    time.Time

	challengeTo   string
	challengeFrom string

	gameSession *GameSession
	board       *game.Board
	ready       bool
	isTurn      bool

	chatLimiter *rate.Limiter
}

// enqueue queues a frame for the writer pump. It never blocks: a full
// buffer means the peer stopped reading, and the session is dropped.
func (s *Session) enqueue(f ServerFrame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- f:
		return true
	default:
		s.server.log.Warn("send buffer full, dropping session",
			zap.Int64("session", s.id), zap.String("username", s.username))
		go s.close()
		return false
	}
}

func (s *Session) sendError(code int, message string) {
	s.enqueue(systemMsg(code, message))
}

// close shuts the transport down. The read loop unblocks with an error
// and runs the full teardown path; calling close more than once is safe.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// readLoop consumes frames until the connection dies, then tears the
// session down.
func (s *Session) readLoop() {
	defer s.server.dropSession(s)

	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		s.server.touch(s)

		var frame ClientFrame
		if err := json.Unmarshal(line, &frame); err != nil || frame.Cmd == "" {
			s.sendError(CodeBadRequest, "malformed frame")
			continue
		}
		s.server.dispatch(s, &frame)
	}
}

// writeLoop is the single writer for the session's socket.
func (s *Session) writeLoop() {
	for {
		select {
		case f := <-s.send:
			if err := s.conn.WriteFrame(&f); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// newSessionToken returns an unguessable 32 character token.
func newSessionToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
