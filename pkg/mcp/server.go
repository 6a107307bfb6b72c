package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxLineBytes bounds a single incoming message. Market list payloads stay
// far below this.
const maxLineBytes = 4 * 1024 * 1024

// Server runs the line-oriented JSON-RPC session over a reader/writer pair,
// typically stdin/stdout.
type Server struct {
	router     *Router
	logger     zerolog.Logger
	maxWorkers int
	in         io.Reader

	writeMu sync.Mutex
	out     io.Writer
}

// NewServer creates a server over the given transport. maxWorkers caps the
// number of concurrently handled requests; values below 1 mean unlimited.
func NewServer(router *Router, in io.Reader, out io.Writer, maxWorkers int, logger zerolog.Logger) *Server {
	return &Server{
		router:     router,
		logger:     logger,
		maxWorkers: maxWorkers,
		in:         in,
		out:        out,
	}
}

// Serve reads newline-delimited JSON-RPC messages until EOF, context
// cancellation, or session shutdown. Notifications are handled inline in
// arrival order; requests run concurrently, so responses may interleave.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	g, ctx := errgroup.WithContext(ctx)
	if s.maxWorkers > 0 {
		g.SetLimit(s.maxWorkers)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			break
		}
		if s.router.Closed() {
			break
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn().Err(err).Msg("Discarding unparseable message")
			s.write(NewErrorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		// Notifications are ordering-sensitive (the lifecycle handshake),
		// so they never go through the worker pool.
		if req.IsNotification() {
			s.router.handleNotification(&req)
			continue
		}

		// Lifecycle requests are ordering-sensitive as well: initialize
		// must observe the pre-handshake state and shutdown must be
		// answered before the loop stops reading.
		if req.Method == "initialize" || req.Method == "shutdown" {
			if resp := s.router.Dispatch(ctx, &req); resp != nil {
				s.write(resp)
			}
			continue
		}

		request := req
		g.Go(func() error {
			if resp := s.router.Dispatch(ctx, &request); resp != nil {
				s.write(resp)
			}
			return nil
		})
	}

	err := g.Wait()
	if scanErr := scanner.Err(); scanErr != nil {
		s.logger.Error().Err(scanErr).Msg("Transport read failed")
		return scanErr
	}
	s.logger.Info().Msg("Server loop finished")
	return err
}

// write serializes one response as a single line. Concurrent handlers share
// the writer, so lines are serialized under a mutex.
func (s *Server) write(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}
