package server

import (
	"go.uber.org/zap"

	"github.com/lab1702/battleship-web/store"
)

// endGame settles a finished match: ratings and history first, then
// GAME_END to both parties, then session reset and game teardown.
// winner is nil for a draw. The resolved flag makes it idempotent; a
// winning shot and a racing disconnect settle the game exactly once.
// Persistence runs with no game or registry lock held.
func (srv *Server) endGame(g *GameSession, winner *Session, reason string) {
	g.mu.Lock()
	if g.resolved {
		g.mu.Unlock()
		return
	}
	g.resolved = true
	g.status = GameFinished
	g.mu.Unlock()

	var loser *Session
	winnerName, loserName := "", ""
	if winner != nil {
		loser = g.opponent(winner)
		winnerName = g.p1Name
		loserName = g.p2Name
		if winner == g.p2 {
			winnerName, loserName = loserName, winnerName
		}
	}

	delta := srv.cfg.RatingDelta

	if winner != nil {
		winnerRating, err := srv.store.UpdateStats(winnerName, delta, true)
		if err != nil {
			srv.log.Error("winner stats update failed",
				zap.String("username", winnerName), zap.Error(err))
		}
		loserRating, err := srv.store.UpdateStats(loserName, -delta, false)
		if err != nil {
			srv.log.Error("loser stats update failed",
				zap.String("username", loserName), zap.Error(err))
		}
		if err := srv.store.AppendHistory(winnerName, loserName, store.ResultWin); err != nil {
			srv.log.Error("history append failed", zap.String("username", winnerName), zap.Error(err))
		}
		if err := srv.store.AppendHistory(loserName, winnerName, store.ResultLose); err != nil {
			srv.log.Error("history append failed", zap.String("username", loserName), zap.Error(err))
		}

		winner.enqueue(ServerFrame{
			Cmd: CmdGameEnd,
			Payload: map[string]interface{}{
				"result": ResultWin,
				"reason": reason,
				"rating": winnerRating,
			},
		})
		loser.enqueue(ServerFrame{
			Cmd: CmdGameEnd,
			Payload: map[string]interface{}{
				"result": ResultLose,
				"reason": reason,
				"rating": loserRating,
			},
		})

		srv.mu.Lock()
		winner.rating = winnerRating
		loser.rating = loserRating
		srv.mu.Unlock()
	} else {
		// Draws exchange no rating
		if err := srv.store.AppendHistory(g.p1Name, g.p2Name, store.ResultDraw); err != nil {
			srv.log.Error("history append failed", zap.String("username", g.p1Name), zap.Error(err))
		}
		if err := srv.store.AppendHistory(g.p2Name, g.p1Name, store.ResultDraw); err != nil {
			srv.log.Error("history append failed", zap.String("username", g.p2Name), zap.Error(err))
		}
		for _, p := range [2]*Session{g.p1, g.p2} {
			srv.mu.RLock()
			rating := p.rating
			srv.mu.RUnlock()
			p.enqueue(ServerFrame{
				Cmd: CmdGameEnd,
				Payload: map[string]interface{}{
					"result": ResultDraw,
					"reason": reason,
					"rating": rating,
				},
			})
		}
	}

	// Return both sessions to the lobby state. A participant that
	// already disconnected stays OFFLINE.
	srv.mu.Lock()
	for _, p := range [2]*Session{g.p1, g.p2} {
		p.gameSession = nil
		p.board = nil
		p.ready = false
		p.isTurn = false
		p.matching = false
		p.matchReady = false
		p.pendingWith = nil
		if p.status == StatusInGame {
			p.status = StatusOnline
		}
	}
	srv.mu.Unlock()

	srv.gamesMu.Lock()
	delete(srv.games, g.id)
	srv.gamesMu.Unlock()

	srv.log.Info("game ended",
		zap.String("game", g.id),
		zap.String("winner", winnerName),
		zap.String("reason", reason))
}
