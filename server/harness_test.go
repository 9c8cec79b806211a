package server

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/lab1702/battleship-web/game"
	"github.com/lab1702/battleship-web/store"
)

// Test harness: sessions are built directly with a buffered send
// channel and no pumps, so handlers run synchronously and tests read
// emitted frames straight from the channel.

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// nopConn satisfies wireConn for sessions that are driven by calling
// the dispatcher directly.
type nopConn struct {
	closed chan struct{}
}

func newNopConn() *nopConn {
	return &nopConn{closed: make(chan struct{})}
}

func (c *nopConn) ReadLine() ([]byte, error) {
	<-c.closed
	return nil, net.ErrClosed
}

func (c *nopConn) WriteFrame(*ServerFrame) error { return nil }

func (c *nopConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *nopConn) RemoteAddr() net.Addr { return fakeAddr("test") }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return NewServer(DefaultConfig(), st, nil)
}

func newTestSession(t *testing.T, srv *Server) *Session {
	t.Helper()
	srv.mu.Lock()
	srv.nextID++
	s := &Session{
		id:          srv.nextID,
		server:      srv,
		conn:        newNopConn(),
		send:        make(chan ServerFrame, sendBufferSize),
		done:        make(chan struct{}),
		status:      StatusOffline,
		lastActive:  time.Now(),
		chatLimiter: rate.NewLimiter(chatRate, chatBurst),
	}
	srv.sessions[s.id] = s
	srv.mu.Unlock()
	return s
}

// sendCmd runs one frame through the dispatcher as if it arrived on
// the wire.
func sendCmd(t *testing.T, srv *Server, s *Session, cmd string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	srv.dispatch(s, &ClientFrame{Cmd: cmd, Payload: raw})
}

// nextFrame pops the next queued frame, if any.
func nextFrame(s *Session) (ServerFrame, bool) {
	select {
	case f := <-s.send:
		return f, true
	default:
		return ServerFrame{}, false
	}
}

// expectFrame asserts the next frame has the given command and returns
// its payload map.
func expectFrame(t *testing.T, s *Session, cmd string) map[string]interface{} {
	t.Helper()
	f, ok := nextFrame(s)
	if !ok {
		t.Fatalf("expected %s frame, got none", cmd)
	}
	if f.Cmd != cmd {
		t.Fatalf("expected %s frame, got %s (%v)", cmd, f.Cmd, f.Payload)
	}
	payload, ok := f.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("%s payload is not a map: %T", cmd, f.Payload)
	}
	return payload
}

// expectSystemMsg asserts the next frame is a SYSTEM_MSG with the code.
func expectSystemMsg(t *testing.T, s *Session, code int) map[string]interface{} {
	t.Helper()
	payload := expectFrame(t, s, CmdSystemMsg)
	if got, _ := payload["code"].(int); got != code {
		t.Fatalf("expected SYSTEM_MSG code %d, got %v", code, payload["code"])
	}
	return payload
}

// expectNoFrame asserts the session's send queue is empty.
func expectNoFrame(t *testing.T, s *Session) {
	t.Helper()
	if f, ok := nextFrame(s); ok {
		t.Fatalf("expected no frame, got %s (%v)", f.Cmd, f.Payload)
	}
}

func drainFrames(s *Session) {
	for {
		if _, ok := nextFrame(s); !ok {
			return
		}
	}
}

// loginAs registers (if needed) and logs a session in.
func loginAs(t *testing.T, srv *Server, s *Session, username string) {
	t.Helper()
	if err := srv.store.Register(username, "pw"); err != nil && err != store.ErrExists {
		t.Fatalf("register failed: %v", err)
	}
	sendCmd(t, srv, s, CmdLogin, map[string]string{"username": username, "password": "pw"})
	expectFrame(t, s, CmdLoginSuccess)
}

// newPlayer creates a logged-in session.
func newPlayer(t *testing.T, srv *Server, username string) *Session {
	t.Helper()
	s := newTestSession(t, srv)
	loginAs(t, srv, s, username)
	return s
}

// startQueuedGame takes two logged-in sessions through the queued
// matchmaking path into a running game. a queued first and moves first.
func startQueuedGame(t *testing.T, srv *Server, a, b *Session) {
	t.Helper()
	sendCmd(t, srv, a, CmdStartMatching, struct{}{})
	expectFrame(t, a, CmdMatchingStarted)
	sendCmd(t, srv, b, CmdStartMatching, struct{}{})
	expectFrame(t, b, CmdMatchingStarted)
	expectFrame(t, a, CmdMatchFound)
	expectFrame(t, b, CmdMatchFound)

	sendCmd(t, srv, a, CmdMatchReady, struct{}{})
	expectFrame(t, b, CmdOpponentReady)
	sendCmd(t, srv, b, CmdMatchReady, struct{}{})
	expectFrame(t, a, CmdOpponentReady)

	expectFrame(t, a, CmdGameStart)
	expectFrame(t, b, CmdGameStart)
}

// standardShips is a valid wire-shaped fleet submission.
func standardShips() []map[string]interface{} {
	return []map[string]interface{}{
		{"name": "Carrier", "size": 5, "row": 0, "col": 0, "horizontal": true},
		{"name": "Battleship", "size": 4, "row": 1, "col": 0, "horizontal": true},
		{"name": "Cruiser", "size": 3, "row": 2, "col": 0, "horizontal": true},
		{"name": "Submarine", "size": 3, "row": 3, "col": 0, "horizontal": true},
		{"name": "Destroyer", "size": 2, "row": 4, "col": 0, "horizontal": true},
	}
}

// placeBoth submits the standard fleet for both players and drains the
// placement frames, leaving the game in the playing phase.
func placeBoth(t *testing.T, srv *Server, a, b *Session) {
	t.Helper()
	sendCmd(t, srv, a, CmdPlaceShips, map[string]interface{}{"ships": standardShips()})
	expectFrame(t, a, CmdPlaceShipAck)
	expectFrame(t, a, CmdWaitingOpponent)
	sendCmd(t, srv, b, CmdPlaceShips, map[string]interface{}{"ships": standardShips()})
	expectFrame(t, b, CmdPlaceShipAck)
	expectFrame(t, a, CmdGameReady)
	expectFrame(t, b, CmdGameReady)
}

// posCoord is shorthand for a wire coordinate.
func posCoord(row, col int) string {
	return game.FormatCoord(row, col)
}

// fleetCoords lists every cell of the standard fleet in wire form.
func fleetCoords() []string {
	coords := make([]string, 0, game.FleetCells)
	ships := []struct{ row, col, size int }{
		{0, 0, 5}, {1, 0, 4}, {2, 0, 3}, {3, 0, 3}, {4, 0, 2},
	}
	for _, s := range ships {
		for i := 0; i < s.size; i++ {
			coords = append(coords, game.FormatCoord(s.row, s.col+i))
		}
	}
	return coords
}
