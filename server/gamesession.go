package server

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lab1702/battleship-web/game"
)

type GameStatus int

const (
	GamePlacingShips GameStatus = iota
	GamePlaying
	GameFinished
)

// Maximum accepted chat message length
const maxChatLen = 500

// GameSession is the authoritative record of one match. Its mutex
// serializes every board and turn mutation, and result frames to both
// players are emitted while it is held, so both sides observe shots in
// the same order.
type GameSession struct {
	id        string
	srv       *Server
	p1, p2    *Session
	p1Name    string
	p2Name    string
	startTime time.Time

	mu            sync.Mutex
	status        GameStatus
	drawOfferFrom *Session
	resolved      bool
}

// opponent returns the other participant. The pairing is immutable for
// the life of the GameSession.
func (g *GameSession) opponent(s *Session) *Session {
	if s == g.p1 {
		return g.p2
	}
	return g.p1
}

// createGame starts a match between two sessions. p1 takes the first
// turn. Both players are notified with GAME_START.
func (srv *Server) createGame(p1, p2 *Session) {
	srv.gamesMu.Lock()
	if len(srv.games) >= srv.cfg.MaxGames {
		srv.gamesMu.Unlock()
		srv.log.Warn("game capacity reached",
			zap.Int("games", srv.cfg.MaxGames))
		srv.mu.Lock()
		for _, p := range [2]*Session{p1, p2} {
			if p.status == StatusInLobby {
				p.status = StatusOnline
			}
		}
		srv.mu.Unlock()
		p1.sendError(CodeInternal, "Server full")
		p2.sendError(CodeInternal, "Server full")
		return
	}
	gs := &GameSession{
		id:        uuid.NewString(),
		srv:       srv,
		p1:        p1,
		p2:        p2,
		p1Name:    p1.username,
		p2Name:    p2.username,
		startTime: time.Now(),
		status:    GamePlacingShips,
	}
	srv.games[gs.id] = gs
	srv.gamesMu.Unlock()

	// A pending challenge involving either player dissolves when the
	// game starts; a challenger left waiting is answered with a reject.
	type displacedChallenge struct {
		challenger *Session
		target     string
	}
	var displaced []displacedChallenge

	srv.mu.Lock()
	for _, p := range [2]*Session{p1, p2} {
		if p.challengeFrom != "" {
			if c := srv.findByUsernameLocked(p.challengeFrom); c != nil && c.challengeTo == p.username {
				c.challengeTo = ""
				displaced = append(displaced, displacedChallenge{challenger: c, target: p.username})
			}
			p.challengeFrom = ""
		}
		if p.challengeTo != "" {
			if t := srv.findByUsernameLocked(p.challengeTo); t != nil && t.challengeFrom == p.username {
				t.challengeFrom = ""
			}
			p.challengeTo = ""
		}
		p.gameSession = gs
		p.board = game.NewBoard()
		p.ready = false
		p.matching = false
		p.matchReady = false
		p.pendingWith = nil
		p.status = StatusInGame
	}
	p1.isTurn = true
	p2.isTurn = false
	srv.mu.Unlock()

	for _, d := range displaced {
		d.challenger.enqueue(ServerFrame{
			Cmd:     CmdChallengeReply,
			Payload: map[string]interface{}{"player": d.target, "status": ReplyReject},
		})
	}

	srv.log.Info("game started",
		zap.String("game", gs.id),
		zap.String("p1", gs.p1Name), zap.String("p2", gs.p2Name))

	p1.enqueue(ServerFrame{
		Cmd:     CmdGameStart,
		Payload: map[string]interface{}{"opponent": gs.p2Name, "your_turn": true},
	})
	p2.enqueue(ServerFrame{
		Cmd:     CmdGameStart,
		Payload: map[string]interface{}{"opponent": gs.p1Name, "your_turn": false},
	})
}

// placeShips validates and stores a fleet submission during the
// placement phase.
func (g *GameSession) placeShips(s *Session, ships []*game.Ship) {
	g.mu.Lock()
	if g.status != GamePlacingShips {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "game is not in placement phase")
		return
	}
	if s.ready {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "ships already placed")
		return
	}
	if err := s.board.PlaceFleet(ships); err != nil {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, err.Error())
		return
	}
	s.ready = true
	opp := g.opponent(s)
	bothReady := opp.ready
	if bothReady {
		g.status = GamePlaying
	}

	if bothReady {
		s.enqueue(ServerFrame{
			Cmd:     CmdPlaceShipAck,
			Payload: map[string]interface{}{"message": "Game starting!"},
		})
		// p1 moves first; isTurn was assigned at game start
		s.enqueue(ServerFrame{
			Cmd:     CmdGameReady,
			Payload: map[string]interface{}{"your_turn": s.isTurn},
		})
		opp.enqueue(ServerFrame{
			Cmd:     CmdGameReady,
			Payload: map[string]interface{}{"your_turn": opp.isTurn},
		})
	} else {
		s.enqueue(ServerFrame{
			Cmd:     CmdPlaceShipAck,
			Payload: map[string]interface{}{"message": "Waiting for opponent"},
		})
		s.enqueue(ServerFrame{Cmd: CmdWaitingOpponent, Payload: map[string]interface{}{}})
	}
	g.mu.Unlock()
}

// move resolves one shot. Only HIT and MISS consume the turn; shooting
// an already-shot cell reports ALREADY_HIT to the shooter alone and
// preserves the turn.
func (g *GameSession) move(s *Session, coord string) {
	g.mu.Lock()
	if g.status != GamePlaying {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "game is not in progress")
		return
	}
	if !s.isTurn {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "Not your turn")
		return
	}
	row, col, err := game.ParseCoord(coord)
	if err != nil {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "Invalid coordinate")
		return
	}

	opp := g.opponent(s)
	result, sunk := opp.board.Fire(row, col)

	if result == game.ShotAlreadyShot {
		g.mu.Unlock()
		s.enqueue(ServerFrame{
			Cmd: CmdMoveResult,
			Payload: map[string]interface{}{
				"coord":        coord,
				"result":       result.String(),
				"ship_sunk":    "",
				"is_your_shot": true,
			},
		})
		return
	}

	gameOver := opp.board.AllSunk()
	if gameOver {
		g.status = GameFinished
	} else {
		s.isTurn = false
		opp.isTurn = true
	}

	shooterResult := map[string]interface{}{
		"coord":        coord,
		"result":       result.String(),
		"ship_sunk":    sunk,
		"is_your_shot": true,
	}
	targetResult := map[string]interface{}{
		"coord":        coord,
		"result":       result.String(),
		"ship_sunk":    sunk,
		"is_your_shot": false,
	}
	if gameOver {
		shooterResult["game_over"] = true
		targetResult["game_over"] = true
	}
	s.enqueue(ServerFrame{Cmd: CmdMoveResult, Payload: shooterResult})
	opp.enqueue(ServerFrame{Cmd: CmdMoveResult, Payload: targetResult})

	if !gameOver {
		s.enqueue(ServerFrame{Cmd: CmdTurnChange, Payload: map[string]interface{}{"your_turn": false}})
		opp.enqueue(ServerFrame{Cmd: CmdTurnChange, Payload: map[string]interface{}{"your_turn": true}})
	}
	g.mu.Unlock()

	if gameOver {
		g.srv.endGame(g, s, ReasonAllShipsSunk)
	}
}

// surrender forfeits the game to the opponent.
func (g *GameSession) surrender(s *Session) {
	g.mu.Lock()
	if g.status != GamePlaying {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "game is not in progress")
		return
	}
	g.status = GameFinished
	g.mu.Unlock()

	g.srv.endGame(g, g.opponent(s), ReasonSurrender)
}

// offerDraw forwards a draw offer to the opponent.
func (g *GameSession) offerDraw(s *Session) {
	g.mu.Lock()
	if g.status != GamePlaying {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "game is not in progress")
		return
	}
	if g.drawOfferFrom == s {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "draw offer already pending")
		return
	}
	g.drawOfferFrom = s
	g.mu.Unlock()

	g.opponent(s).enqueue(ServerFrame{
		Cmd:     CmdDrawOffer,
		Payload: map[string]interface{}{"from": s.username},
	})
}

// replyDraw settles a pending draw offer.
func (g *GameSession) replyDraw(s *Session, status string) {
	g.mu.Lock()
	offerer := g.drawOfferFrom
	if g.status != GamePlaying || offerer == nil || offerer != g.opponent(s) {
		g.mu.Unlock()
		s.sendError(CodeBadRequest, "no draw offer pending")
		return
	}
	g.drawOfferFrom = nil

	if strings.EqualFold(status, "accept") {
		g.status = GameFinished
		g.mu.Unlock()
		g.srv.endGame(g, nil, ReasonDrawAccepted)
		return
	}
	g.mu.Unlock()

	offerer.enqueue(ServerFrame{Cmd: CmdDrawRejected, Payload: map[string]interface{}{}})
}

// chat forwards a message to the opponent only. Chat is not logged.
func (g *GameSession) chat(s *Session, message string) {
	if len(message) > maxChatLen {
		message = message[:maxChatLen]
	}
	g.opponent(s).enqueue(ServerFrame{
		Cmd:     CmdChat,
		Payload: map[string]interface{}{"from": s.username, "message": message},
	})
}
