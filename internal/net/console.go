package net

import (
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// Console runs a single session over the operator's terminal instead of
// a TCP listener. The session is wired through an in-process pipe so the
// rest of the driver sees the same reader/writer machinery a network
// client gets. The local terminal is switched to raw mode so the line
// editor handles keystrokes itself.
type Console struct {
	sess     *Session
	sessions chan *Session
	local    net.Conn

	restore  func()
	goneOnce sync.Once
	gone     chan struct{}

	log *zap.Logger
}

func NewConsole(ansi, unicode bool, log *zap.Logger) (*Console, error) {
	remote, local := net.Pipe()

	c := &Console{
		sessions: make(chan *Session, 1),
		local:    local,
		gone:     make(chan struct{}),
		log:      log,
	}

	sess := NewSession(remote, 1, ansi, unicode, 256, log)
	sess.telnet = false

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			local.Close()
			remote.Close()
			return nil, err
		}
		c.restore = func() { term.Restore(fd, old) }
		if w, h, err := term.GetSize(fd); err == nil {
			sess.mu.Lock()
			sess.editor.Width = w
			sess.editor.Height = h
			sess.mu.Unlock()
		}
	}

	c.sess = sess
	sess.Start()
	go c.pumpIn()
	go c.pumpOut()
	c.sessions <- sess
	return c, nil
}

// NewSessions yields the console session exactly once.
func (c *Console) NewSessions() <-chan *Session { return c.sessions }

// SessionGone fires when the game loop reaps the console session, which
// for a single-user driver means the run is over.
func (c *Console) SessionGone() {
	c.goneOnce.Do(func() { close(c.gone) })
}

// Gone is closed once the console session has been reaped.
func (c *Console) Gone() <-chan struct{} { return c.gone }

// Shutdown restores the terminal and tears the pipe down.
func (c *Console) Shutdown() {
	c.sess.Close()
	c.local.Close()
	if c.restore != nil {
		c.restore()
	}
}

func (c *Console) pumpIn() {
	buf := make([]byte, 512)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			// Ctrl-C and Ctrl-D reach us as bytes in raw mode; treat
			// either as a hangup.
			for _, b := range buf[:n] {
				if b == 0x03 || b == 0x04 {
					c.sess.Close()
					return
				}
			}
			if _, werr := c.local.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			c.sess.Close()
			return
		}
	}
}

func (c *Console) pumpOut() {
	if _, err := io.Copy(os.Stdout, c.local); err != nil {
		c.log.Debug("console output closed", zap.Error(err))
	}
}
