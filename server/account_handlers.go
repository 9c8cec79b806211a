package server

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/lab1702/battleship-web/store"
)

// Usernames are restricted at registration to keep them shell- and
// file-name safe (they appear in history file names).
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,49}$`)

func (srv *Server) handleRegister(s *Session, raw json.RawMessage) {
	var data credentialsData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}

	srv.mu.RLock()
	status := s.status
	srv.mu.RUnlock()
	if status != StatusOffline {
		s.sendError(CodeBadRequest, "already logged in")
		return
	}

	if !usernamePattern.MatchString(data.Username) {
		s.sendError(CodeBadRequest, "invalid username")
		return
	}
	if data.Password == "" {
		s.sendError(CodeBadRequest, "password required")
		return
	}

	if err := srv.store.Register(data.Username, data.Password); err != nil {
		if errors.Is(err, store.ErrExists) {
			s.sendError(CodeBadRequest, "Username already exists")
			return
		}
		srv.log.Error("register failed", zap.String("username", data.Username), zap.Error(err))
		s.sendError(CodeInternal, "registration failed")
		return
	}

	s.enqueue(ServerFrame{
		Cmd:     CmdRegisterSuccess,
		Payload: map[string]interface{}{"message": "Registration successful"},
	})
}

func (srv *Server) handleLogin(s *Session, raw json.RawMessage) {
	var data credentialsData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}

	srv.mu.RLock()
	status := s.status
	srv.mu.RUnlock()
	if status != StatusOffline {
		s.sendError(CodeBadRequest, "already logged in")
		return
	}

	if err := srv.store.Authenticate(data.Username, data.Password); err != nil {
		s.sendError(CodeUnauthorized, "Invalid credentials")
		return
	}

	rating, err := srv.store.Rating(data.Username)
	if err != nil {
		srv.log.Error("rating lookup failed", zap.String("username", data.Username), zap.Error(err))
		s.sendError(CodeInternal, "login failed")
		return
	}

	token := newSessionToken()

	srv.mu.Lock()
	if other := srv.findByUsernameLocked(data.Username); other != nil && other != s {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "account already logged in elsewhere")
		return
	}
	s.username = data.Username
	s.status = StatusOnline
	s.token = token
	s.rating = rating
	srv.mu.Unlock()

	srv.log.Info("login", zap.String("username", data.Username), zap.Int64("session", s.id))

	s.enqueue(ServerFrame{
		Cmd: CmdLoginSuccess,
		Payload: map[string]interface{}{
			"username":     data.Username,
			"rating":       rating,
			"sessionToken": token,
		},
	})
}

func (srv *Server) handleLogout(s *Session, _ json.RawMessage) {
	srv.mu.Lock()
	gs := s.gameSession
	srv.mu.Unlock()

	// Leaving mid-game forfeits it
	if gs != nil {
		srv.endGame(gs, gs.opponent(s), ReasonOpponentDisconnected)
	}

	srv.mu.Lock()
	srv.removeFromQueueLocked(s)
	srv.clearChallengeLocked(s)
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
	username := s.username
	s.username = ""
	s.token = ""
	s.status = StatusOffline
	s.matching = false
	srv.mu.Unlock()

	if peer != nil {
		peer.enqueue(ServerFrame{Cmd: CmdMatchDeclined, Payload: map[string]interface{}{}})
	}

	srv.log.Info("logout", zap.String("username", username), zap.Int64("session", s.id))
	s.enqueue(ServerFrame{Cmd: CmdLogoutSuccess, Payload: map[string]interface{}{}})
}

func (srv *Server) handlePlayerList(s *Session, _ json.RawMessage) {
	srv.mu.RLock()
	players := make([]PlayerInfo, 0, len(srv.sessions))
	for _, other := range srv.sessions {
		if other == s {
			continue
		}
		// Only lobby-visible players; in-game and unauthenticated
		// sessions are hidden
		if other.status != StatusOnline && other.status != StatusInLobby {
			continue
		}
		players = append(players, PlayerInfo{
			Username: other.username,
			Status:   other.status.String(),
			Rating:   other.rating,
		})
	}
	srv.mu.RUnlock()

	s.enqueue(ServerFrame{
		Cmd:     CmdPlayerList,
		Payload: map[string]interface{}{"players": players},
	})
}

func (srv *Server) handleLeaderboard(s *Session, _ json.RawMessage) {
	entries := srv.store.Leaderboard(store.LeaderboardLimit)
	s.enqueue(ServerFrame{
		Cmd:     CmdLeaderboard,
		Payload: map[string]interface{}{"players": entries},
	})
}

func (srv *Server) handleMatchHistory(s *Session, _ json.RawMessage) {
	srv.mu.RLock()
	username := s.username
	srv.mu.RUnlock()

	records, err := srv.store.History(username, store.HistoryLimit)
	if err != nil {
		srv.log.Error("history read failed", zap.String("username", username), zap.Error(err))
		s.sendError(CodeInternal, "history unavailable")
		return
	}
	if records == nil {
		records = []store.MatchRecord{}
	}
	s.enqueue(ServerFrame{
		Cmd:     CmdMatchHistory,
		Payload: map[string]interface{}{"matches": records},
	})
}

func (srv *Server) handlePing(s *Session, _ json.RawMessage) {
	s.enqueue(ServerFrame{
		Cmd:     CmdPong,
		Payload: map[string]interface{}{"timestamp": time.Now().UnixMilli()},
	})
}

func (srv *Server) handleUpdatePing(s *Session, raw json.RawMessage) {
	var data updatePingData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}

	srv.mu.Lock()
	s.pingMs = data.Ping
	gs := s.gameSession
	srv.mu.Unlock()

	if gs != nil {
		gs.opponent(s).enqueue(ServerFrame{
			Cmd:     CmdPingUpdate,
			Payload: map[string]interface{}{"opponent_ping": data.Ping},
		})
	}
}
