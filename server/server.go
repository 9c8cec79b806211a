package server

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lab1702/battleship-web/store"
)

// Dead-peer detection for in-game sessions relies on OS keepalive
// probes rather than the inactivity sweep.
const keepAlivePeriod = 30 * time.Second

// Config carries the tunables of the game server.
type Config struct {
	ListenAddr       string
	MatchWindow      int           // maximum rating difference for queued pairing
	RatingDelta      int           // rating points exchanged per decided game
	ReaperPeriod     time.Duration // how often idle sessions are swept
	IdleTimeout      time.Duration // inactivity before a session is reaped
	HandshakeTimeout time.Duration // MATCH_READY window after pairing
	MaxGames         int           // concurrent game cap
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":8080",
		MatchWindow:      100,
		RatingDelta:      10,
		ReaperPeriod:     5 * time.Second,
		IdleTimeout:      60 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		MaxGames:         256,
	}
}

// Server owns the session registry, the matchmaking queue and the
// active game table, and accepts client connections.
type Server struct {
	cfg   Config
	store *store.Store
	log   *zap.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session
	nextID   int64
	queue    []*Session
	queueSeq int64

	gamesMu sync.Mutex
	games   map[string]*GameSession

	listener net.Listener
	shutdown chan struct{}
	stopOnce sync.Once
}

// NewServer creates a game server around an opened store.
func NewServer(cfg Config, st *store.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		store:    st,
		log:      log.Named("server"),
		sessions: make(map[int64]*Session),
		games:    make(map[string]*GameSession),
		shutdown: make(chan struct{}),
	}
}

// Serve listens on the configured TCP address and accepts clients until
// Shutdown is called. It blocks.
func (srv *Server) Serve() error {
	ln, err := net.Listen("tcp", srv.cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	go srv.reaperLoop()

	srv.log.Info("listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-srv.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			srv.log.Warn("accept failed", zap.Error(err))
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetKeepAlive(true)
			tc.SetKeepAlivePeriod(keepAlivePeriod)
		}
		srv.startSession(newTCPConn(conn))
	}
}

// Shutdown stops the accept loop and closes every live session.
func (srv *Server) Shutdown() {
	srv.stopOnce.Do(func() {
		close(srv.shutdown)

		srv.mu.Lock()
		ln := srv.listener
		open := make([]*Session, 0, len(srv.sessions))
		for _, s := range srv.sessions {
			open = append(open, s)
		}
		srv.mu.Unlock()

		if ln != nil {
			ln.Close()
		}
		for _, s := range open {
			s.close()
		}
		srv.log.Info("server stopped")
	})
}

// startSession registers a new session for an accepted connection and
// starts its pumps.
func (srv *Server) startSession(conn wireConn) *Session {
	srv.mu.Lock()
	srv.nextID++
	s := &Session{
		id:          srv.nextID,
		server:      srv,
		conn:        conn,
		send:        make(chan ServerFrame, sendBufferSize),
		done:        make(chan struct{}),
		status:      StatusOffline,
		lastActive:  time.Now(),
		chatLimiter: rate.NewLimiter(chatRate, chatBurst),
	}
	srv.sessions[s.id] = s
	srv.mu.Unlock()

	srv.log.Info("session connected",
		zap.Int64("session", s.id), zap.String("remote", conn.RemoteAddr().String()))

	s.enqueue(ServerFrame{
		Cmd:     CmdWelcome,
		Payload: map[string]interface{}{"message": "Welcome to Battleship Server"},
	})

	go s.writeLoop()
	go s.readLoop()
	return s
}

// touch refreshes the session's activity timestamp.
func (srv *Server) touch(s *Session) {
	srv.mu.Lock()
	s.lastActive = time.Now()
	srv.mu.Unlock()
}

// dropSession is the single teardown path for a dead connection. It
// removes the session from every structure it may be referenced from,
// then settles any game it was part of.
func (srv *Server) dropSession(s *Session) {
	s.close()

	srv.mu.Lock()
	if _, ok := srv.sessions[s.id]; !ok {
		srv.mu.Unlock()
		return
	}
	delete(srv.sessions, s.id)
	srv.removeFromQueueLocked(s)

	peer := s.pendingWith
	if peer != nil {
		peer.pendingWith = nil
		peer.matchReady = false
		if peer.status == StatusInLobby {
			peer.status = StatusOnline
		}
		s.pendingWith = nil
		s.matchReady = false
	}
	srv.clearChallengeLocked(s)

	gs := s.gameSession
	username := s.username
	s.status = StatusOffline
	srv.mu.Unlock()

	// A pairing partner that is still waiting learns the handshake is off
	if peer != nil {
		peer.enqueue(ServerFrame{Cmd: CmdMatchDeclined, Payload: map[string]interface{}{}})
	}

	// A disconnect in game forfeits it
	if gs != nil {
		srv.endGame(gs, gs.opponent(s), ReasonOpponentDisconnected)
	}

	srv.log.Info("session closed",
		zap.Int64("session", s.id), zap.String("username", username))
}

// findByUsernameLocked returns the live session logged in under the
// given name. Caller holds srv.mu.
func (srv *Server) findByUsernameLocked(username string) *Session {
	if username == "" {
		return nil
	}
	for _, s := range srv.sessions {
		if s.username == username && s.status != StatusOffline {
			return s
		}
	}
	return nil
}

// clearChallengeLocked clears any pending challenge involving s, on
// both ends. Caller holds srv.mu.
func (srv *Server) clearChallengeLocked(s *Session) {
	if s.challengeTo != "" {
		if t := srv.findByUsernameLocked(s.challengeTo); t != nil && t.challengeFrom == s.username {
			t.challengeFrom = ""
		}
		s.challengeTo = ""
	}
	if s.challengeFrom != "" {
		if c := srv.findByUsernameLocked(s.challengeFrom); c != nil && c.challengeTo == s.username {
			c.challengeTo = ""
		}
		s.challengeFrom = ""
	}
}

// reaperLoop periodically sweeps idle sessions and expired pairing
// handshakes, and re-runs the pairing pass.
func (srv *Server) reaperLoop() {
	ticker := time.NewTicker(srv.cfg.ReaperPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-srv.shutdown:
			return
		case <-ticker.C:
			srv.reap()
		}
	}
}

func (srv *Server) reap() {
	now := time.Now()

	srv.mu.RLock()
	var idle []*Session
	var expired []*Session
	for _, s := range srv.sessions {
		// In-game turn stalls are legal (humans think), so the
		// inactivity sweep skips IN_GAME sessions; a dead in-game peer
		// surfaces as a transport error via TCP keepalive and takes
		// the regular forfeit path
		if s.status != StatusInGame && now.Sub(s.lastActive) > srv.cfg.IdleTimeout {
			idle = append(idle, s)
		}
		// Collect each expired pair once, from its lower-id side
		if s.pendingWith != nil && now.Sub(s.pairedAt) > srv.cfg.HandshakeTimeout &&
			s.id < s.pendingWith.id {
			expired = append(expired, s)
		}
	}
	srv.mu.RUnlock()

	for _, s := range idle {
		srv.log.Info("reaping idle session",
			zap.Int64("session", s.id), zap.String("username", s.username))
		// Closing the transport unblocks the read loop, which runs the
		// regular teardown including any in-game forfeit.
		s.close()
	}

	for _, s := range expired {
		srv.expireHandshake(s)
	}

	srv.runPairingPass()
}

// expireHandshake cancels a MATCH_READY handshake that timed out,
// treating it as a mutual decline.
func (srv *Server) expireHandshake(s *Session) {
	srv.mu.Lock()
	peer := s.pendingWith
	if peer == nil || peer.pendingWith != s {
		srv.mu.Unlock()
		return
	}
	for _, p := range [2]*Session{s, peer} {
		p.pendingWith = nil
		p.matchReady = false
		if p.status == StatusInLobby {
			p.status = StatusOnline
		}
	}
	srv.mu.Unlock()

	srv.log.Info("match handshake expired",
		zap.String("p1", s.username), zap.String("p2", peer.username))
	for _, p := range [2]*Session{s, peer} {
		p.enqueue(ServerFrame{Cmd: CmdMatchDeclined, Payload: map[string]interface{}{}})
	}
}
