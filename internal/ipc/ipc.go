// Package ipc is the local control socket of the daemon.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	log "log/slog"
)

const DefaultSocketPath = "/tmp/voxchat.sock"

// ErrInUse is returned by StartServer when another daemon answers on the path.
var ErrInUse = errors.New("control socket in use")

const (
	CmdStop   = "stop"
	CmdStatus = "status"
)

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

type ControlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler returns nil when the command was accepted.
type Handler func(ControlMessage) error

type Server struct {
	ln   net.Listener
	path string
	wg   sync.WaitGroup
}

// StartServer listens on path and runs handler for every message until
// Close is called. A stale socket file at path is replaced, a live one
// is left alone.
func StartServer(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrInUse, path)
	}
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{ln: ln, path: path}
	s.wg.Add(1)
	go s.accept(handler)

	log.Debug("Control socket ready", "path", path)
	return s, nil
}

func (s *Server) accept(handler Handler) {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Control accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handleConn(conn, handler)
		}()
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}

	reply := ControlReply{OK: true}
	if err := handler(msg); err != nil {
		reply = ControlReply{Error: err.Error()}
	}
	_ = json.NewEncoder(conn).Encode(reply)
}

// SendCommand delivers cmd to the daemon listening on path and waits for
// its acknowledgement.
func SendCommand(path, cmd string) error {
	if path == "" {
		path = DefaultSocketPath
	}

	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd}); err != nil {
		return err
	}

	var reply ControlReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("%s: %s", cmd, reply.Error)
	}
	return nil
}
