package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler processes one application-message line received from a client.
// It is invoked once per line that is neither PING nor EXIT.
type Handler func(line string)

const clientIdleTimeout = 5 * time.Second

// Server is the line-oriented duplex server described by the transport
// contract: one accept loop goroutine, one goroutine per connection.
type Server struct {
	handler Handler
	log     *logrus.Entry

	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
}

// NewServer returns a Server that invokes handler for every application
// message line it receives.
func NewServer(handler Handler, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		handler: handler,
		log:     log.WithField("component", "transport"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds addr and runs the accept loop in its own goroutine. It
// returns once the listener is bound, not once the server has stopped.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.WithField("addr", ln.Addr().String()).Info("transport listening")
	return nil
}

// Addr returns the bound listener's address. Only valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			s.log.WithError(err).Warn("accept failed")
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleClient(conn)
	}
}

func (s *Server) handleClient(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	if _, err := conn.Write([]byte("READY\n")); err != nil {
		return
	}

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(clientIdleTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			if !isBenignCloseError(err) {
				s.log.WithError(err).Debug("client connection error")
			}
			return
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "PING":
			if _, err := conn.Write([]byte("PONG\n")); err != nil {
				return
			}
		case "EXIT":
			return
		default:
			if s.handler != nil {
				s.handler(line)
			}
			if _, err := conn.Write([]byte("ACK\n")); err != nil {
				return
			}
		}
	}
}

// isBenignCloseError reports whether err is the routine "peer hung up"
// noise (connection reset, broken pipe, use of closed connection) that
// the transport contract says should not be logged as a failure.
func isBenignCloseError(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	for _, needle := range []string{"reset by peer", "broken pipe", "use of closed network connection", "i/o timeout"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// Stop closes the listener and every open connection, then waits for the
// accept loop and all connection handlers to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closing = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
}
