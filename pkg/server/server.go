package server

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/wire"
)

var (
	ErrServerClosed = errors.New("server is closed")
)

// Server serves storage backends of a storage area to clients speaking
// the wire protocol.
type Server struct {
	sm       opfs.StorageManager
	listener net.Listener
	sessions map[uint64]*Session
	conns    map[uint64]net.Conn
	nextID   uint64
	mu       sync.Mutex
	closed   bool
}

// New creates a new server over the storage area of |sm|.
func New(sm opfs.StorageManager) *Server {
	return &Server{
		sm:       sm,
		sessions: make(map[uint64]*Session),
		conns:    make(map[uint64]net.Conn),
	}
}

// Serve accepts connections of |listener| until Close, serving each with
// its own Session. It returns nil once the Server is closed.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return ErrServerClosed
	}
	s.listener = listener
	s.mu.Unlock()

	log.WithField("addr", listener.Addr().String()).Info("serving storage backends")

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			var closed = s.closed
			s.mu.Unlock()

			if closed {
				return nil
			}
			return err
		}
		go s.ServeConn(context.Background(), conn)
	}
}

// ServeConn serves requests read from |conn| until it ends, then closes
// it along with every backend the connection left open.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	var session, id, err = s.addSession(conn)
	if err != nil {
		conn.Close()
		return
	}
	defer s.removeSession(id)

	var entry = log.WithFields(log.Fields{"client": id, "remote": conn.RemoteAddr().String()})
	entry.Debug("client connected")

	for {
		msg, err := wire.ReadMessage(conn)
		if err == io.EOF {
			break
		} else if err != nil {
			entry.WithField("err", err).Debug("failed to read message")
			break
		}

		msgType, payload := session.Handle(ctx, msg)
		if err = wire.WriteMessage(conn, msgType, payload); err != nil {
			entry.WithField("err", err).Debug("failed to write message")
			break
		}
	}
	entry.Debug("client disconnected")
}

// NewSession returns a Session which serves backends of this Server's
// storage area without a connection, as a worker relaying messages does.
func (s *Server) NewSession() *Session {
	return newSession(s.sm)
}

// Close stops serving, closes all client connections, and releases every
// backend they hold.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var listener = s.listener
	var conns = s.conns
	s.conns = make(map[uint64]net.Conn)
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	// Closing a connection ends its ServeConn loop, which releases
	// the Session's backends.
	for _, conn := range conns {
		conn.Close()
	}
	return nil
}

func (s *Server) addSession(conn net.Conn) (*Session, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, ErrServerClosed
	}
	s.nextID++
	var session = newSession(s.sm)
	s.sessions[s.nextID] = session
	s.conns[s.nextID] = conn

	return session, s.nextID, nil
}

func (s *Server) removeSession(id uint64) {
	s.mu.Lock()
	var session = s.sessions[id]
	var conn = s.conns[id]
	delete(s.sessions, id)
	delete(s.conns, id)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if session != nil {
		session.Close()
	}
}
