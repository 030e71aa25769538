// ABOUTME: Unix-socket NDJSON server carrying the cross-context storage channel
// ABOUTME: Keeps each connection open until every in-flight handler resolves

package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Server accepts delegated connections on a unix domain socket and feeds
// each newline-delimited request to the Handler. Requests on one connection
// are handled concurrently; each gets its response as soon as its handler
// resolves, serialized by a per-connection write lock.
type Server struct {
	handler *Handler
	logger  *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a Server around the given handler.
func NewServer(h *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler: h,
		logger:  logger.With("component", "broker-server"),
	}
}

// Listen binds the unix socket, removing a stale socket file first.
func (s *Server) Listen(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("broker listening", "socket", socketPath)
	return nil
}

// Serve accepts connections until ctx is cancelled or the listener closes.
// Listen must have been called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

// Close shuts the listener down.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// serveConn reads requests off one connection. Every request runs in its own
// goroutine so a slow store operation never blocks later requests, and the
// connection stays open until the handler resolves and the response is
// written.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
		closing bool
	)

	write := func(resp Response) {
		writeMu.Lock()
		defer writeMu.Unlock()
		raw, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("encoding response", "error", err)
			return
		}
		raw = append(raw, '\n')
		if _, err := conn.Write(raw); err != nil {
			s.logger.Debug("writing response", "error", err)
		}
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() && !closing {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			write(errResponse("", "malformed request: "+err.Error()))
			continue
		}

		if req.Type == TypeCloseSession {
			// Answer, then let the deferred close drop the session once
			// in-flight requests drain.
			closing = true
			wg.Wait()
			write(s.handler.Handle(ctx, req))
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			write(s.handler.Handle(ctx, req))
		}()
	}

	wg.Wait()

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.logger.Debug("connection read error", "error", err)
	}
}

// maxMessageSize bounds a single request line. Note content passes through
// here, so the limit is generous.
const maxMessageSize = 8 << 20
