package net

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/render"
)

// Session is one client connection. Network I/O runs in dedicated reader
// and writer goroutines; game state is touched only by the game loop,
// which consumes completed input lines from the Lines channel.
type Session struct {
	ID    uint64
	Token uuid.UUID // correlation id for log lines across reconnects
	conn  net.Conn
	IP    string

	// Login state, owned by the game loop after handoff.
	PlayerID string
	Name     string
	Wizard   bool

	Lines chan string
	out   chan []byte

	mu     sync.Mutex // guards editor and caps across goroutines
	editor *LineEditor
	ansi   bool
	uni    bool
	telnet bool // negotiate IAC options on Start

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	quitting  atomic.Bool

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, ansi, unicode bool, outSize int, log *zap.Logger) *Session {
	token := uuid.New()
	s := &Session{
		ID:      id,
		Token:   token,
		conn:    conn,
		IP:      conn.RemoteAddr().String(),
		Lines:   make(chan string, 16),
		out:     make(chan []byte, outSize),
		editor:  NewLineEditor("> ", ansi),
		ansi:    ansi,
		uni:     unicode,
		telnet:  true,
		closeCh: make(chan struct{}),
		log: log.With(
			zap.Uint64("session", id),
			zap.String("token", token.String())),
	}
	return s
}

// Start negotiates the telnet options the driver cares about and launches
// the reader and writer goroutines.
func (s *Session) Start() {
	if s.telnet {
		// IAC WILL ECHO (server-side echo), IAC WILL SGA, IAC DO NAWS.
		nego := []byte{
			telIAC, telWILL, 1,
			telIAC, telWILL, 3,
			telIAC, telDO, optNAWS,
		}
		if _, err := s.conn.Write(nego); err != nil {
			s.log.Debug("negotiation write failed", zap.Error(err))
			s.Close()
			return
		}
	}
	go s.readLoop()
	go s.writeLoop()
}

// Opts reports the session's render capabilities, geometry included.
func (s *Session) Opts() render.Opts {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := render.Opts{EnableAnsi: s.ansi, EnableUnicode: s.uni, Width: 80, Height: 24}
	if s.editor.Width > 0 {
		o.Width = s.editor.Width
	}
	if s.editor.Height > 0 {
		o.Height = s.editor.Height
	}
	return o
}

// SetPrompt changes the prompt used for redraws.
func (s *Session) SetPrompt(p string) {
	s.mu.Lock()
	s.editor.Prompt = p
	s.mu.Unlock()
}

// SetMask toggles password-style echo.
func (s *Session) SetMask(on bool) {
	s.mu.Lock()
	s.editor.Mask = on
	s.mu.Unlock()
}

// Prompt repaints the prompt and any partial input.
func (s *Session) Prompt() {
	s.mu.Lock()
	b := s.editor.RedrawBytes()
	s.mu.Unlock()
	s.enqueue(b)
}

// WriteRendered sends pre-rendered bytes, clearing the in-progress edit
// line first and repainting it after so asynchronous tick output never
// corrupts what the player is typing.
func (s *Session) WriteRendered(text string) {
	s.mu.Lock()
	var b []byte
	if s.ansi {
		b = append(b, '\r', 0x1b, '[', 'K')
	} else {
		b = append(b, '\r', '\n')
	}
	b = append(b, text...)
	b = append(b, s.editor.RedrawBytes()...)
	s.mu.Unlock()
	s.enqueue(b)
}

// RequestQuit closes the session once buffered output has been written.
func (s *Session) RequestQuit() {
	if s.quitting.Swap(true) {
		return
	}
	// nil is the writer's flush-then-close sentinel.
	select {
	case s.out <- nil:
	default:
		s.Close()
	}
}

func (s *Session) Quitting() bool { return s.quitting.Load() }

func (s *Session) enqueue(b []byte) {
	if s.closed.Load() || len(b) == 0 {
		return
	}
	select {
	case s.out <- b:
	default:
		// Backpressure: a client that cannot drain its output gets cut,
		// never the game loop stalled.
		s.log.Warn("output queue full, dropping slow connection")
		s.Close()
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool { return s.closed.Load() }

// readLoop feeds raw bytes through the line editor and hands completed
// lines to the game loop.
func (s *Session) readLoop() {
	defer s.Close()
	buf := make([]byte, 512)
	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		s.mu.Lock()
		lines, echo := s.editor.Feed(buf[:n])
		s.mu.Unlock()

		s.enqueue(echo)
		for _, line := range lines {
			// Block until the game loop catches up; the goroutine is
			// per-session so only this client waits.
			select {
			case s.Lines <- line:
			case <-s.closeCh:
				return
			}
		}
	}
}

func (s *Session) writeLoop() {
	defer s.Close()
	for {
		select {
		case data := <-s.out:
			if data == nil {
				s.flushRemaining()
				return
			}
			if !s.writeChunk(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) flushRemaining() {
	for {
		select {
		case data := <-s.out:
			if data == nil {
				continue
			}
			if !s.writeChunk(data) {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) writeChunk(data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := s.conn.Write(data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
