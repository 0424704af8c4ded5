package session

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// maxLineLength bounds a single protocol line.
const maxLineLength = 64 * 1024

// Conn is a line-oriented client connection.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// NewTCPConn reads newline-terminated lines from a stream connection.
func NewTCPConn(conn net.Conn) Conn {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)
	return &tcpConn{conn: conn, scanner: sc}
}

func (c *tcpConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return c.scanner.Text(), nil
}

func (c *tcpConn) WriteLine(line string) error {
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// WebSocket abstracts the websocket connection.
type WebSocket interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
	RemoteAddr() net.Addr
}

type wsConn struct {
	ws      WebSocket
	mu      sync.Mutex
	pending []string
}

// NewWebSocketConn carries protocol lines in text frames. A frame may hold
// several newline-separated lines.
func NewWebSocketConn(ws WebSocket) Conn {
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.pending = strings.Split(strings.TrimRight(string(data), "\r\n"), "\n")
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsConn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
