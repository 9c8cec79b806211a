package server

import (
	"encoding/json"

	"github.com/lab1702/battleship-web/game"
)

// Wire frames are line-delimited JSON objects with a command name and a
// payload object: {"cmd":"LOGIN","payload":{...}}\n

// ClientFrame represents a frame from client to server
type ClientFrame struct {
	Cmd     string          `json:"cmd"`
	Payload json.RawMessage `json:"payload"`
}

// ServerFrame represents a frame from server to client
type ServerFrame struct {
	Cmd     string      `json:"cmd"`
	Payload interface{} `json:"payload"`
}

// Client commands
const (
	CmdRegister       = "REGISTER"
	CmdLogin          = "LOGIN"
	CmdLogout         = "LOGOUT"
	CmdPlayerList     = "PLAYER_LIST"
	CmdLeaderboard    = "LEADERBOARD"
	CmdMatchHistory   = "MATCH_HISTORY"
	CmdStartMatching  = "START_MATCHING"
	CmdCancelMatching = "CANCEL_MATCHING"
	CmdMatchReady     = "MATCH_READY"
	CmdMatchDecline   = "MATCH_DECLINE"
	CmdChallenge      = "CHALLENGE"
	CmdChallengeReply = "CHALLENGE_REPLY"
	CmdPlaceShips     = "PLACE_SHIPS"
	CmdMove           = "MOVE"
	CmdChat           = "CHAT"
	CmdSurrender      = "SURRENDER"
	CmdDrawOffer      = "DRAW_OFFER"
	CmdDrawReply      = "DRAW_REPLY"
	CmdPing           = "PING"
	CmdUpdatePing     = "UPDATE_PING"
)

// Server frames
const (
	CmdWelcome           = "WELCOME"
	CmdRegisterSuccess   = "REGISTER_SUCCESS"
	CmdLoginSuccess      = "LOGIN_SUCCESS"
	CmdLogoutSuccess     = "LOGOUT_SUCCESS"
	CmdMatchingStarted   = "MATCHING_STARTED"
	CmdMatchingCancelled = "MATCHING_CANCELLED"
	CmdMatchFound        = "MATCH_FOUND"
	CmdMatchDeclined     = "MATCH_DECLINED"
	CmdOpponentReady     = "OPPONENT_READY"
	CmdGameStart         = "GAME_START"
	CmdPlaceShipAck      = "PLACE_SHIP_ACK"
	CmdWaitingOpponent   = "WAITING_OPPONENT"
	CmdGameReady         = "GAME_READY"
	CmdMoveResult        = "MOVE_RESULT"
	CmdTurnChange        = "TURN_CHANGE"
	CmdDrawRejected      = "DRAW_REJECTED"
	CmdGameEnd           = "GAME_END"
	CmdPong              = "PONG"
	CmdPingUpdate        = "PING_UPDATE"
	CmdSystemMsg         = "SYSTEM_MSG"
)

// SYSTEM_MSG codes
const (
	CodeOK           = 200
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeNotFound     = 404
	CodeInternal     = 500
)

// Game end reasons
const (
	ReasonAllShipsSunk         = "ALL_SHIPS_SUNK"
	ReasonSurrender            = "SURRENDER"
	ReasonDrawAccepted         = "DRAW_ACCEPTED"
	ReasonOpponentDisconnected = "OPPONENT_DISCONNECTED"
)

// Game results as sent in GAME_END
const (
	ResultWin  = "WIN"
	ResultLose = "LOSE"
	ResultDraw = "DRAW"
)

// Challenge / draw reply statuses
const (
	ReplyAccept = "ACCEPT"
	ReplyReject = "REJECT"
)

// Request payloads

type credentialsData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type challengeData struct {
	TargetUsername string `json:"target_username"`
}

type challengeReplyData struct {
	ChallengerUsername string `json:"challenger_username"`
	Status             string `json:"status"`
}

type placeShipsData struct {
	Ships []*game.Ship `json:"ships"`
}

type moveData struct {
	Coord string `json:"coord"`
}

type chatData struct {
	Message string `json:"message"`
}

type drawReplyData struct {
	Status string `json:"status"`
}

type updatePingData struct {
	Ping int `json:"ping"`
}

// PlayerInfo is one row of a PLAYER_LIST response.
type PlayerInfo struct {
	Username string `json:"username"`
	Status   string `json:"status"`
	Rating   int    `json:"rating"`
}

func systemMsg(code int, message string) ServerFrame {
	return ServerFrame{
		Cmd: CmdSystemMsg,
		Payload: map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
}
