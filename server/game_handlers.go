package server

import (
	"encoding/json"
)

// In-game commands are validated by the dispatcher for IN_GAME status
// and delegated to the session's GameSession, whose mutex serializes
// the two players' handlers.

// currentGame fetches the session's active game.
func (srv *Server) currentGame(s *Session) *GameSession {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return s.gameSession
}

func (srv *Server) handlePlaceShips(s *Session, raw json.RawMessage) {
	var data placeShipsData
	if err := json.Unmarshal(raw, &data); err != nil || len(data.Ships) == 0 {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}
	gs := srv.currentGame(s)
	if gs == nil {
		s.sendError(CodeBadRequest, "not in a game")
		return
	}
	gs.placeShips(s, data.Ships)
}

func (srv *Server) handleMove(s *Session, raw json.RawMessage) {
	var data moveData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}
	gs := srv.currentGame(s)
	if gs == nil {
		s.sendError(CodeBadRequest, "not in a game")
		return
	}
	gs.move(s, data.Coord)
}

func (srv *Server) handleChat(s *Session, raw json.RawMessage) {
	var data chatData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}
	if !s.chatLimiter.Allow() {
		s.sendError(CodeBadRequest, "chat rate limit exceeded")
		return
	}
	gs := srv.currentGame(s)
	if gs == nil {
		s.sendError(CodeBadRequest, "not in a game")
		return
	}
	gs.chat(s, data.Message)
}

func (srv *Server) handleSurrender(s *Session, _ json.RawMessage) {
	gs := srv.currentGame(s)
	if gs == nil {
		s.sendError(CodeBadRequest, "not in a game")
		return
	}
	gs.surrender(s)
}

func (srv *Server) handleDrawOffer(s *Session, _ json.RawMessage) {
	gs := srv.currentGame(s)
	if gs == nil {
		s.sendError(CodeBadRequest, "not in a game")
		return
	}
	gs.offerDraw(s)
}

func (srv *Server) handleDrawReply(s *Session, raw json.RawMessage) {
	var data drawReplyData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}
	gs := srv.currentGame(s)
	if gs == nil {
		s.sendError(CodeBadRequest, "not in a game")
		return
	}
	gs.replyDraw(s, data.Status)
}
