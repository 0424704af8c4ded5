package player

// Sender delivers one protocol line to a remote participant.
type Sender interface {
	Send(line string) error
}

// Player is a participant's handle inside a match.
type Player struct {
	ID   string
	Name string
	conn Sender
}

// NewPlayer binds a display name to the connection that reaches it.
func NewPlayer(id, name string, conn Sender) *Player {
	return &Player{ID: id, Name: name, conn: conn}
}

// Send writes a line to the player. Callers treat failures as advisory; the
// owning session notices the broken connection on its next read.
func (p *Player) Send(line string) error {
	return p.conn.Send(line)
}
