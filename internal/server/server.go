package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"durakv/internal/logger"
	"durakv/internal/metrics"
	"durakv/internal/store"

	"github.com/google/uuid"
)

// Server is the TCP boundary: it owns the wire protocol (line-oriented
// commands, \r\n-terminated responses) and the snapshot-trigger policy.
// It spawns one goroutine per accepted connection and holds no lock of
// its own - all synchronization happens inside the Store it wraps.
type Server struct {
	st               *store.Store
	addr             string
	snapshotInterval int

	listener  net.Listener
	wg        sync.WaitGroup
	closing   atomic.Bool
	readyOnce sync.Once
	ready     chan struct{}
}

func New(st *store.Store, addr string, snapshotInterval int) *Server {
	if snapshotInterval <= 0 {
		snapshotInterval = 10
	}
	return &Server{st: st, addr: addr, snapshotInterval: snapshotInterval, ready: make(chan struct{})}
}

// Addr blocks until the listener is bound and returns its address. Useful
// for tests that bind to ":0" and need the port the kernel chose.
func (srv *Server) Addr() string {
	<-srv.ready
	return srv.listener.Addr().String()
}

// ListenAndServe accepts connections until the listener is closed.
func (srv *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", srv.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.addr, err)
	}
	srv.listener = ln
	srv.readyOnce.Do(func() { close(srv.ready) })
	logger.LogInfoEvent("TCP listener started on %s", srv.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if srv.closing.Load() {
				return nil
			}
			logger.LogErrorEvent("accept error: %v", err)
			continue
		}

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			srv.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections and waits for every accepted
// connection's handler to return before returning. A handler returns only
// when its client disconnects or sends exit; Close does not close open
// client connections itself.
func (srv *Server) Close() error {
	srv.closing.Store(true)
	var err error
	if srv.listener != nil {
		err = srv.listener.Close()
	}
	srv.wg.Wait()
	return err
}

func (srv *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	sessionID := uuid.NewString()
	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		cmd := parseCommand(line)
		if cmd.name == "" {
			continue
		}

		start := time.Now()
		response, shouldClose := srv.dispatch(cmd)
		logger.LogAccessEvent("session=%s remote=%s cmd=%s dur=%v", sessionID, remote, cmd.name, time.Since(start))

		if _, err := conn.Write([]byte(response + "\r\n")); err != nil {
			return
		}
		if shouldClose {
			return
		}
	}
}

// dispatch renders the command table: usage errors for malformed arity,
// the success responses for set/get/del, Goodbye! for exit, and an
// unknown-command error otherwise. It also drives the snapshot trigger
// policy: every mutating command, successful or not, advances the shared
// counter, and every snapshotInterval-th one asks the store to snapshot.
func (srv *Server) dispatch(cmd command) (response string, shouldClose bool) {
	if cmd.isMutating() {
		defer srv.maybeSnapshot()
	}

	switch cmd.name {
	case "set":
		if len(cmd.args) != 2 {
			return "ERROR: Usage: set <key> <value>", false
		}
		if err := srv.st.Set([]byte(cmd.args[0]), []byte(cmd.args[1])); err != nil {
			logger.LogErrorEvent("set failed: %v", err)
			return fmt.Sprintf("ERROR: %v", err), false
		}
		metrics.IncSet()
		return "OK", false

	case "get":
		if len(cmd.args) != 1 {
			return "ERROR: Usage: get <key>", false
		}
		metrics.IncGet()
		value, ok := srv.st.Get([]byte(cmd.args[0]))
		if !ok {
			return "(nil)", false
		}
		return string(value), false

	case "del":
		if len(cmd.args) != 1 {
			return "ERROR: Usage: del <key>", false
		}
		removed, err := srv.st.Del([]byte(cmd.args[0]))
		if err != nil {
			logger.LogErrorEvent("del failed: %v", err)
			return fmt.Sprintf("ERROR: %v", err), false
		}
		metrics.IncDel()
		if removed {
			return "(integer) 1", false
		}
		return "(integer) 0", false

	case "exit":
		return "Goodbye!", true

	default:
		return fmt.Sprintf("ERROR: Unknown command '%s'", cmd.name), false
	}
}

func (srv *Server) maybeSnapshot() {
	count := metrics.IncMutationCounter()
	if count%int64(srv.snapshotInterval) != 0 {
		return
	}
	if err := srv.st.CreateSnapshot(); err != nil {
		logger.LogErrorEvent("snapshot failed: %v", err)
		return
	}
	metrics.IncSnapshotCount()
	logger.LogInfoEvent("snapshot created after %d mutations", count)
}
