package server

import (
	"encoding/json"

	"go.uber.org/zap"
)

// command binds a handler to the session state it requires. Keeping
// the precondition next to the handler makes the whole matrix testable
// without a socket.
type command struct {
	needAuth bool
	needGame bool
	handler  func(*Server, *Session, json.RawMessage)
}

var commands = map[string]command{
	CmdRegister: {handler: (*Server).handleRegister},
	CmdLogin:    {handler: (*Server).handleLogin},
	CmdPing:     {handler: (*Server).handlePing},

	CmdLogout:       {needAuth: true, handler: (*Server).handleLogout},
	CmdPlayerList:   {needAuth: true, handler: (*Server).handlePlayerList},
	CmdLeaderboard:  {needAuth: true, handler: (*Server).handleLeaderboard},
	CmdMatchHistory: {needAuth: true, handler: (*Server).handleMatchHistory},
	CmdUpdatePing:   {needAuth: true, handler: (*Server).handleUpdatePing},

	CmdStartMatching:  {needAuth: true, handler: (*Server).handleStartMatching},
	CmdCancelMatching: {needAuth: true, handler: (*Server).handleCancelMatching},
	CmdMatchReady:     {needAuth: true, handler: (*Server).handleMatchReady},
	CmdMatchDecline:   {needAuth: true, handler: (*Server).handleMatchDecline},
	CmdChallenge:      {needAuth: true, handler: (*Server).handleChallenge},
	CmdChallengeReply: {needAuth: true, handler: (*Server).handleChallengeReply},

	CmdPlaceShips: {needAuth: true, needGame: true, handler: (*Server).handlePlaceShips},
	CmdMove:       {needAuth: true, needGame: true, handler: (*Server).handleMove},
	CmdChat:       {needAuth: true, needGame: true, handler: (*Server).handleChat},
	CmdSurrender:  {needAuth: true, needGame: true, handler: (*Server).handleSurrender},
	CmdDrawOffer:  {needAuth: true, needGame: true, handler: (*Server).handleDrawOffer},
	CmdDrawReply:  {needAuth: true, needGame: true, handler: (*Server).handleDrawReply},
}

// dispatch routes one inbound frame through the command table.
func (srv *Server) dispatch(s *Session, frame *ClientFrame) {
	// A handler panic must not take the server down with it
	defer func() {
		if r := recover(); r != nil {
			srv.log.Error("panic in handler",
				zap.String("cmd", frame.Cmd), zap.Int64("session", s.id), zap.Any("panic", r))
			s.sendError(CodeInternal, "internal server error")
		}
	}()

	cmd, ok := commands[frame.Cmd]
	if !ok {
		s.sendError(CodeBadRequest, "unknown command")
		return
	}

	srv.mu.RLock()
	status := s.status
	srv.mu.RUnlock()

	if cmd.needAuth && status == StatusOffline {
		s.sendError(CodeUnauthorized, "login required")
		return
	}
	if cmd.needGame && status != StatusInGame {
		s.sendError(CodeBadRequest, "not in a game")
		return
	}

	cmd.handler(srv, s, frame.Payload)
}
