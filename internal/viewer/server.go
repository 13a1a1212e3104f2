// Package viewer is the receiving end of a remote-play link packaged as a
// small web app. It accepts one sender at a time, over raw TCP or the
// /ingest WebSocket endpoint, rebuilds the picture with pkg/receiver, and
// pushes re-encoded JPEG frames to any number of browsers. Sessions can be
// tapped into a recording store as they stream.
package viewer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/Andreas0Cool/citra3ds/pkg/encoder"
	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/metrics"
	"github.com/Andreas0Cool/citra3ds/pkg/protocol"
	"github.com/Andreas0Cool/citra3ds/pkg/receiver"
	"github.com/Andreas0Cool/citra3ds/pkg/recording"
)

//go:embed index.html
var indexHTML []byte

// DefaultHTTPAddr is where the browser-facing router listens unless
// configured otherwise.
const DefaultHTTPAddr = ":8080"

// Config configures a viewer server.
type Config struct {
	// HTTPAddr is the browser-facing listen address. Empty means
	// DefaultHTTPAddr.
	HTTPAddr string

	// StreamAddr is the TCP listen address for senders. Empty disables the
	// raw TCP listener; the /ingest endpoint still accepts senders.
	StreamAddr string

	// Layout is the capture resolution senders must use. Empty means
	// frame.DefaultLayout.
	Layout frame.Layout

	// Quality is the JPEG quality for frames re-encoded to browsers.
	Quality int

	// Store holds session recordings. Required when Record is set.
	Store recording.Store

	// Record taps every ingested session into Store under a fresh ID.
	Record bool

	// Logger overrides slog.Default.
	Logger *slog.Logger
}

// Server terminates sender connections and serves the browser UI.
type Server struct {
	cfg    Config
	grid   frame.Grid
	logger *slog.Logger

	hub      *Hub
	upgrader websocket.Upgrader
	router   chi.Router

	// baseCtx outlives any single sender; canceling it drops everything.
	baseCtx context.Context
	stop    context.CancelFunc
	once    sync.Once

	// feed is the currently attached sender, nil when idle. A new sender
	// always wins: attaching cancels whatever was streaming before.
	mu   sync.Mutex
	feed *feed
}

// feed is the per-sender state: the decode canvas, a dedicated re-encoder
// for the browser path, and an optional recording tap. A feed is driven by
// exactly one goroutine.
type feed struct {
	rec     *receiver.Receiver
	enc     *encoder.JPEG
	cancel  context.CancelFunc
	remote  string
	started time.Time
	frames  atomic.Int64

	recordID string
	sink     io.WriteCloser
	writer   *recording.Writer
}

// New validates cfg and returns a server ready to Run.
func New(cfg Config) (*Server, error) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Layout == (frame.Layout{}) {
		cfg.Layout = frame.DefaultLayout
	}
	if cfg.Quality == 0 {
		cfg.Quality = encoder.DefaultQuality
	}
	if cfg.Record && cfg.Store == nil {
		return nil, errors.New("viewer: recording enabled without a store")
	}
	g, err := frame.NewGrid(cfg.Layout)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "viewer")

	baseCtx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		grid:   g,
		logger: logger,
		hub:    NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		baseCtx: baseCtx,
		stop:    stop,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/recordings", s.handleRecordings)
	r.Get("/ws", s.handleViewerWS)
	r.Get("/ingest", s.handleIngest)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.router = r

	return s, nil
}

// Handler returns the HTTP surface for mounting in external routers or
// test servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens and serves until ctx is canceled or a listener fails. It
// returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("viewer: http listen: %w", err)
	}
	var streamLn net.Listener
	if s.cfg.StreamAddr != "" {
		streamLn, err = net.Listen("tcp", s.cfg.StreamAddr)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("viewer: stream listen: %w", err)
		}
	}
	return s.run(ctx, httpLn, streamLn)
}

func (s *Server) run(ctx context.Context, httpLn, streamLn net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("http server listening", "addr", httpLn.Addr().String())
		if err := srv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("viewer: http serve: %w", err)
			return
		}
		errCh <- nil
	}()
	if streamLn != nil {
		s.logger.Info("stream listener ready",
			"addr", streamLn.Addr().String(),
			"layout", s.cfg.Layout.String())
		go func() {
			errCh <- s.acceptSenders(ctx, streamLn)
		}()
	}

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, stopShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopShutdown()
	srv.Shutdown(shutdownCtx)
	s.Close()
	s.logger.Info("viewer stopped")
	return runErr
}

// Close drops the attached sender, disconnects all browsers, and cancels
// pending work. Run calls it during shutdown; it is safe to call twice.
func (s *Server) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		f := s.feed
		s.mu.Unlock()
		if f != nil {
			f.cancel()
		}
		s.stop()
		s.hub.Close()
	})
}

// acceptSenders owns the raw TCP listener. ln is closed when ctx ends.
func (s *Server) acceptSenders(ctx context.Context, ln net.Listener) error {
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
			return fmt.Errorf("viewer: accept: %w", err)
		}
		go s.handleSender(conn)
	}
}

func (s *Server) handleSender(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	fctx, f, err := s.attach(remote)
	if err != nil {
		s.logger.Error("sender rejected", "remote", remote, "error", err)
		return
	}
	defer s.detach(f)

	switch err := f.rec.Serve(fctx, conn); {
	case err == nil:
		s.logger.Info("sender disconnected", "remote", remote, "frames", f.frames.Load())
	case errors.Is(err, context.Canceled):
		s.logger.Info("sender dropped", "remote", remote, "frames", f.frames.Load())
	default:
		s.logger.Warn("sender failed", "remote", remote, "error", err)
	}
}

// attach builds the per-sender state and makes it current, kicking out any
// sender that was streaming before.
func (s *Server) attach(remote string) (context.Context, *feed, error) {
	rec, err := receiver.New(s.cfg.Layout)
	if err != nil {
		return nil, nil, err
	}

	fctx, cancel := context.WithCancel(s.baseCtx)
	f := &feed{
		rec:     rec,
		enc:     encoder.NewJPEG(s.cfg.Quality),
		cancel:  cancel,
		remote:  remote,
		started: time.Now(),
	}
	if s.cfg.Record && s.cfg.Store != nil {
		// The store context deliberately outlives the feed: a recording
		// must still flush after a new sender kicks this one out.
		if err := s.openRecording(s.baseCtx, f); err != nil {
			s.logger.Error("recording setup failed", "remote", remote, "error", err)
		}
	}
	rec.OnMessage = func(msg *protocol.Message) { s.record(f, msg) }
	rec.OnFrame = func(buf *frame.Buffer) { s.publish(f, buf) }

	s.mu.Lock()
	old := s.feed
	s.feed = f
	s.mu.Unlock()
	if old != nil {
		old.cancel()
		s.logger.Info("sender replaced", "old", old.remote, "new", remote)
	} else {
		s.logger.Info("sender attached", "remote", remote)
	}
	return fctx, f, nil
}

func (s *Server) detach(f *feed) {
	s.mu.Lock()
	if s.feed == f {
		s.feed = nil
	}
	s.mu.Unlock()
	f.cancel()
	s.closeRecording(f)
}

func (s *Server) openRecording(ctx context.Context, f *feed) error {
	id := recording.NewID()
	sink, err := s.cfg.Store.Create(ctx, id)
	if err != nil {
		return err
	}
	w, err := recording.NewWriter(sink, s.cfg.Layout)
	if err != nil {
		sink.Close()
		return err
	}
	f.recordID, f.sink, f.writer = id, sink, w
	s.logger.Info("recording session", "recording_id", id)
	return nil
}

func (s *Server) closeRecording(f *feed) {
	if f.writer == nil {
		return
	}
	frames := f.writer.Frames()
	if err := f.writer.Close(); err != nil {
		s.logger.Error("recording close failed", "recording_id", f.recordID, "error", err)
	}
	if err := f.sink.Close(); err != nil {
		s.logger.Error("recording store close failed", "recording_id", f.recordID, "error", err)
	} else {
		s.logger.Info("recording finished", "recording_id", f.recordID, "messages", frames)
	}
	f.writer, f.sink = nil, nil
}

// record tees one message into the recording, closing the tap on the first
// write failure so a sick store cannot stall the stream.
func (s *Server) record(f *feed, msg *protocol.Message) {
	if f.writer == nil {
		return
	}
	if err := f.writer.WriteMessage(time.Since(f.started), msg); err != nil {
		s.logger.Error("recording write failed, tap closed",
			"recording_id", f.recordID, "error", err)
		s.closeRecording(f)
	}
}

// publish re-encodes the updated canvas and hands it to the browser hub.
func (s *Server) publish(f *feed, buf *frame.Buffer) {
	f.frames.Add(1)
	data, err := f.enc.EncodeFrame(buf)
	if err != nil {
		s.logger.Error("browser re-encode failed", "error", err)
		return
	}
	s.hub.Publish(data)
}

// apply folds one message into the feed in the same order Serve does:
// apply, record, publish, ack.
func (s *Server) apply(f *feed, msg *protocol.Message) (byte, error) {
	updated, err := f.rec.Apply(msg)
	if err != nil {
		return protocol.AckNone, err
	}
	s.record(f, msg)
	if updated {
		s.publish(f, f.rec.Frame())
	}
	return protocol.AckReady, nil
}

// handleIngest terminates a sender that arrives over WebSocket. Framing
// matches the sender-side WebSocket transport: one protocol message per
// binary WebSocket message, acks as one-byte binary messages back.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ingest upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	fctx, f, err := s.attach(r.RemoteAddr)
	if err != nil {
		s.logger.Error("sender rejected", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer s.detach(f)

	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-fctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-watch:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if fctx.Err() == nil &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("ingest read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		msg, err := protocol.ReadMessage(bytes.NewReader(data), s.grid.BitmapSize())
		if err != nil {
			s.logger.Warn("ingest desynced", "remote", r.RemoteAddr, "error", err)
			return
		}
		ack, err := s.apply(f, msg)
		if err != nil {
			s.logger.Warn("ingest apply failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{ack}); err != nil {
			return
		}
	}
}

// handleViewerWS hands a browser connection to the hub.
func (s *Server) handleViewerWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("viewer upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.hub.ServeViewer(conn)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	attached := s.feed != nil
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"sender":  attached,
		"viewers": s.hub.Viewers(),
	})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		http.Error(w, "no recording store configured", http.StatusNotFound)
		return
	}
	infos, err := s.cfg.Store.List(r.Context())
	if err != nil {
		s.logger.Error("listing recordings failed", "error", err)
		http.Error(w, "listing recordings failed", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []recording.Info{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}
