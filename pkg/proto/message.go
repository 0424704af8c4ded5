package proto

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Separator = ":"
)

// Command is a client request verb.
type Command string

const (
	CmdLogin      Command = "LOGIN"
	CmdRegister   Command = "REGISTER"
	CmdLogout     Command = "LOGOUT"
	CmdCreateRoom Command = "CREATE_ROOM"
	CmdJoinRoom   Command = "JOIN_ROOM"
	CmdGetRooms   Command = "GET_ROOMS"
	CmdPlaceShips Command = "PLACE_SHIPS"
	CmdShoot      Command = "SHOOT"
)

// minArgs is the number of fields each command needs after the verb.
var minArgs = map[Command]int{
	CmdLogin:      2,
	CmdRegister:   5,
	CmdLogout:     0,
	CmdCreateRoom: 0,
	CmdJoinRoom:   1,
	CmdGetRooms:   0,
	CmdPlaceShips: 1,
	CmdShoot:      2,
}

// Server to client message kinds.
const (
	LoginOK           = "LOGIN_OK"
	RegisterOK        = "REGISTER_OK"
	LogoutOK          = "LOGOUT_OK"
	RoomList          = "ROOM_LIST"
	RoomCreated       = "ROOM_CREATED"
	AutoJoined        = "AUTO_JOINED"
	JoinedOK          = "JOINED_OK"
	RoomInfo          = "ROOM_INFO"
	PlayerJoined      = "PLAYER_JOINED"
	StartPlacingShips = "Start_Placing_Ships" // mixed case on the wire
	ShipsPlacedOK     = "SHIPS_PLACED_OK"
	GameStart         = "GAME_START"
	YourTurn          = "YOUR_TURN"
	OpponentTurn      = "OPPONENT_TURN"
	ShotResult        = "SHOT_RESULT"
	OpponentShot      = "OPPONENT_SHOT"
	ShipSunk          = "SHIP_SUNK"
	YourShipSunk      = "YOUR_SHIP_SUNK"
	GameOver          = "GAME_OVER"
	MonitorData       = "MONITOR_DATA"
	Error             = "ERROR"
)

// GAME_OVER outcomes and shot outcomes.
const (
	OutcomeWin             = "WIN"
	OutcomeLose            = "LOSE"
	OutcomeWinByDisconnect = "WIN_BY_DISCONNECT"
	ShotHit                = "HIT"
	ShotMiss               = "MISS"
	RoleAdmin              = "ADMIN"
)

var (
	ErrEmptyLine      = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingArgs    = errors.New("missing arguments")
)

// Request is a parsed client line.
type Request struct {
	Command Command
	Args    []string
}

// ParseLine splits a client line on ':' keeping empty trailing fields, and
// checks the verb and its arity.
func ParseLine(line string) (*Request, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyLine
	}

	parts := strings.Split(line, Separator)
	cmd := Command(strings.ToUpper(strings.TrimSpace(parts[0])))
	need, ok := minArgs[cmd]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownCommand, sanitize(parts[0]))
	}
	args := parts[1:]
	if len(args) < need {
		return nil, fmt.Errorf("%w for %s", ErrMissingArgs, cmd)
	}
	return &Request{Command: cmd, Args: args}, nil
}

// Arg returns the i-th argument or "".
func (r *Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// Format joins a message kind and its fields with ':'.
func Format(kind string, fields ...any) string {
	if len(fields) == 0 {
		return kind
	}
	var sb strings.Builder
	sb.WriteString(kind)
	for _, f := range fields {
		sb.WriteString(Separator)
		fmt.Fprint(&sb, f)
	}
	return sb.String()
}

// ErrorLine renders err as an ERROR line. Separators in the message are
// replaced so that clients splitting once still see the whole text.
func ErrorLine(err error) string {
	return Error + Separator + sanitize(err.Error())
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, Separator, " -")
}
