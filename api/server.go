package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// NewServer creates a Server for the specified address and handler
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		Server: &http.Server{Addr: addr, Handler: handler},
	}
}

// Server wraps http.Server with non-blocking start and graceful stop
type Server struct {
	*http.Server

	listener    net.Listener
	lastError   error
	serverGroup *sync.WaitGroup
	inFlight    chan bool
}

// Start starts the server.  It is non-blocking, serving happens on its own
// goroutine.
func (s *Server) Start() error {
	if s.Handler == nil {
		return errors.New("no server handler set")
	}
	if s.listener != nil {
		return errors.New("server already started")
	}

	addr := s.Addr
	if addr == "" {
		addr = ":http"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.listener = listener
	s.serverGroup = &sync.WaitGroup{}
	s.inFlight = make(chan bool, 50000)
	s.Handler = &trackingHandler{handler: s.Handler, inFlight: s.inFlight}

	s.serverGroup.Add(1)
	go func() {
		defer s.serverGroup.Done()

		err := s.Serve(listener)
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			s.lastError = err
		}
	}()

	return nil
}

// Stop closes the listener; in-flight requests keep running
func (s *Server) Stop() error {
	if s.listener == nil {
		return errors.New("server not started")
	}
	if err := s.listener.Close(); err != nil {
		return err
	}
	return s.lastError
}

// WaitStop waits until the server is stopped and the in-flight requests
// have finished, up to the specified timeout
func (s *Server) WaitStop(timeout time.Duration) error {
	if s.listener == nil {
		return errors.New("server not started")
	}

	s.serverGroup.Wait()

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-tick.C:
			if len(s.inFlight) == 0 {
				return s.lastError
			}
		case <-deadline.C:
			return fmt.Errorf("timeout after %s waiting for %d request(s) to finish", timeout, len(s.inFlight))
		}
	}
}

type trackingHandler struct {
	handler  http.Handler
	inFlight chan bool
}

func (th *trackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	th.inFlight <- true
	defer func() {
		<-th.inFlight
	}()

	th.handler.ServeHTTP(w, r)
}
