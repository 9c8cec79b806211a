package server

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

// The matchmaker has two entry paths that converge on a GameSession:
// the rating-windowed queue (START_MATCHING, pairing pass, MATCH_READY
// handshake) and direct challenges (CHALLENGE / CHALLENGE_REPLY, which
// skip the handshake).

func (srv *Server) handleStartMatching(s *Session, _ json.RawMessage) {
	srv.mu.Lock()
	switch {
	case s.status != StatusOnline:
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "cannot start matching now")
		return
	case s.challengeTo != "" || s.challengeFrom != "":
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "challenge pending")
		return
	}
	s.matching = true
	s.matchReady = false
	s.status = StatusInLobby
	srv.queueSeq++
	s.queueSeq = srv.queueSeq
	srv.queue = append(srv.queue, s)
	srv.mu.Unlock()

	s.enqueue(ServerFrame{Cmd: CmdMatchingStarted, Payload: map[string]interface{}{}})

	srv.runPairingPass()
}

func (srv *Server) handleCancelMatching(s *Session, _ json.RawMessage) {
	srv.mu.Lock()
	if !s.matching && s.pendingWith == nil {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "not matching")
		return
	}
	// Cancelling after MATCH_FOUND counts as a decline
	if s.pendingWith != nil {
		srv.mu.Unlock()
		srv.declinePair(s)
		s.enqueue(ServerFrame{Cmd: CmdMatchingCancelled, Payload: map[string]interface{}{}})
		return
	}
	srv.removeFromQueueLocked(s)
	s.status = StatusOnline
	srv.mu.Unlock()

	s.enqueue(ServerFrame{Cmd: CmdMatchingCancelled, Payload: map[string]interface{}{}})
}

func (srv *Server) handleMatchReady(s *Session, _ json.RawMessage) {
	srv.mu.Lock()
	peer := s.pendingWith
	if peer == nil || peer.pendingWith != s {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "no match pending")
		return
	}
	s.matchReady = true
	bothReady := peer.matchReady
	if bothReady {
		s.pendingWith = nil
		peer.pendingWith = nil
		s.matchReady = false
		peer.matchReady = false
	}
	srv.mu.Unlock()

	peer.enqueue(ServerFrame{
		Cmd:     CmdOpponentReady,
		Payload: map[string]interface{}{"username": s.username},
	})

	if bothReady {
		// The earlier queue entrant moves first
		p1, p2 := s, peer
		if peer.queueSeq < s.queueSeq {
			p1, p2 = peer, s
		}
		srv.createGame(p1, p2)
	}
}

func (srv *Server) handleMatchDecline(s *Session, _ json.RawMessage) {
	srv.mu.RLock()
	pending := s.pendingWith != nil
	srv.mu.RUnlock()
	if !pending {
		s.sendError(CodeBadRequest, "no match pending")
		return
	}
	srv.declinePair(s)
}

// declinePair dissolves a pending pairing. The declining side returns
// to ONLINE quietly; the other side is notified.
func (srv *Server) declinePair(decliner *Session) {
	srv.mu.Lock()
	peer := decliner.pendingWith
	if peer == nil || peer.pendingWith != decliner {
		srv.mu.Unlock()
		return
	}
	for _, p := range [2]*Session{decliner, peer} {
		p.pendingWith = nil
		p.matchReady = false
		p.matching = false
		if p.status == StatusInLobby {
			p.status = StatusOnline
		}
	}
	srv.mu.Unlock()

	srv.log.Info("match declined",
		zap.String("decliner", decliner.username), zap.String("peer", peer.username))
	peer.enqueue(ServerFrame{Cmd: CmdMatchDeclined, Payload: map[string]interface{}{}})
}

// removeFromQueueLocked drops a session from the matchmaking queue.
// Caller holds srv.mu.
func (srv *Server) removeFromQueueLocked(s *Session) {
	for i, q := range srv.queue {
		if q == s {
			srv.queue = append(srv.queue[:i], srv.queue[i+1:]...)
			break
		}
	}
	s.matching = false
}

// runPairingPass scans the queue earliest-first and pairs players whose
// ratings fall within the matchmaking window. Paired players leave the
// queue and enter the MATCH_READY handshake.
func (srv *Server) runPairingPass() {
	for {
		srv.mu.Lock()
		var a, b *Session
	scan:
		for i := 0; i < len(srv.queue); i++ {
			for j := i + 1; j < len(srv.queue); j++ {
				if ratingDiff(srv.queue[i].rating, srv.queue[j].rating) <= srv.cfg.MatchWindow {
					a, b = srv.queue[i], srv.queue[j]
					break scan
				}
			}
		}
		if a == nil {
			srv.mu.Unlock()
			return
		}
		srv.removeFromQueueLocked(a)
		srv.removeFromQueueLocked(b)
		now := time.Now()
		a.pendingWith, b.pendingWith = b, a
		a.matchReady, b.matchReady = false, false
		a.pairedAt, b.pairedAt = now, now
		aInfo := map[string]interface{}{"opponent": b.username, "rating": b.rating}
		bInfo := map[string]interface{}{"opponent": a.username, "rating": a.rating}
		srv.mu.Unlock()

		srv.log.Info("match found",
			zap.String("p1", a.username), zap.String("p2", b.username))
		a.enqueue(ServerFrame{Cmd: CmdMatchFound, Payload: aInfo})
		b.enqueue(ServerFrame{Cmd: CmdMatchFound, Payload: bInfo})
	}
}

func (srv *Server) handleChallenge(s *Session, raw json.RawMessage) {
	var data challengeData
	if err := json.Unmarshal(raw, &data); err != nil || data.TargetUsername == "" {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}

	srv.mu.Lock()
	// A player holds at most one of queue slot, pending challenge,
	// active game; a queued or pairing player cannot open a challenge
	if s.status == StatusInLobby {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "cannot challenge while matchmaking")
		return
	}
	if s.status != StatusOnline {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "cannot challenge now")
		return
	}
	if data.TargetUsername == s.username {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "cannot challenge yourself")
		return
	}
	if s.challengeTo != "" {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "challenge already pending")
		return
	}
	target := srv.findByUsernameLocked(data.TargetUsername)
	if target == nil || (target.status != StatusOnline && target.status != StatusInLobby) {
		srv.mu.Unlock()
		s.sendError(CodeNotFound, "Player not found or offline")
		return
	}
	if target.challengeFrom != "" {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "player already has a pending challenge")
		return
	}
	s.challengeTo = target.username
	target.challengeFrom = s.username
	challenger := s.username
	srv.mu.Unlock()

	target.enqueue(ServerFrame{
		Cmd:     CmdChallenge,
		Payload: map[string]interface{}{"challenger": challenger},
	})
	s.sendError(CodeOK, "Challenge sent to "+data.TargetUsername)
}

func (srv *Server) handleChallengeReply(s *Session, raw json.RawMessage) {
	var data challengeReplyData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.sendError(CodeBadRequest, "malformed payload")
		return
	}

	srv.mu.Lock()
	if s.challengeFrom == "" || s.challengeFrom != data.ChallengerUsername {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "no such challenge")
		return
	}
	challenger := srv.findByUsernameLocked(s.challengeFrom)
	s.challengeFrom = ""
	if challenger != nil {
		challenger.challengeTo = ""
	}
	if challenger == nil {
		srv.mu.Unlock()
		s.sendError(CodeNotFound, "Challenger not found")
		return
	}

	if !strings.EqualFold(data.Status, ReplyAccept) {
		replyFrom := s.username
		srv.mu.Unlock()
		challenger.enqueue(ServerFrame{
			Cmd:     CmdChallengeReply,
			Payload: map[string]interface{}{"player": replyFrom, "status": ReplyReject},
		})
		return
	}

	// Accepting pulls both players out of any queue; the game starts
	// immediately with no ready handshake, challenger first
	if challenger.gameSession != nil || s.gameSession != nil ||
		challenger.pendingWith != nil || s.pendingWith != nil {
		srv.mu.Unlock()
		s.sendError(CodeBadRequest, "player is no longer available")
		return
	}
	srv.removeFromQueueLocked(challenger)
	srv.removeFromQueueLocked(s)
	srv.mu.Unlock()

	srv.createGame(challenger, s)
}

func ratingDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
