package live

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Event types sent to websocket clients.
const (
	EventTrace      = "trace"
	EventHeartRate  = "heart_rate"
	EventWaveform   = "waveform"
	EventLiveSteps  = "live_steps"
	EventTotalSteps = "total_steps"
	EventSession    = "session"
	EventNotice     = "notice"
)

// Event is the JSON envelope written to websocket clients.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

const defaultPingInterval = 20 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server streams the Feed to websocket clients at /live.
type Server struct {
	feed         *Feed
	trace        *Trace
	logger       *logrus.Logger
	pingInterval time.Duration
}

// NewServer creates a live server. trace may be nil.
func NewServer(feed *Feed, trace *Trace, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{feed: feed, trace: trace, logger: logger, pingInterval: defaultPingInterval}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.eventStream)
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Live display server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithField("error", err).Warn("Live: websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Clients never send anything we act on; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	hr := s.feed.HeartRate.Subscribe(0)
	defer hr.Cancel()
	wave := s.feed.Waveform.Subscribe(0)
	defer wave.Cancel()
	liveSteps := s.feed.LiveSteps.Subscribe(0)
	defer liveSteps.Cancel()
	total := s.feed.TotalSteps.Subscribe(0)
	defer total.Cancel()
	session := s.feed.Session.Subscribe(0)
	defer session.Cancel()
	notices := s.feed.Notices.Subscribe(0)
	defer notices.Cancel()

	if s.trace != nil {
		if err := conn.WriteJSON(Event{Type: EventTrace, Timestamp: time.Now().UTC(), Data: s.trace.Samples()}); err != nil {
			return
		}
	}

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	s.logger.WithField("remote", r.RemoteAddr).Debug("Live client connected")
	defer s.logger.WithField("remote", r.RemoteAddr).Debug("Live client disconnected")

	for {
		var evt Event
		select {
		case v := <-hr.C():
			evt = Event{Type: EventHeartRate, Data: v}
		case v := <-wave.C():
			evt = Event{Type: EventWaveform, Data: v}
		case v := <-liveSteps.C():
			evt = Event{Type: EventLiveSteps, Data: v}
		case v := <-total.C():
			evt = Event{Type: EventTotalSteps, Data: v}
		case v := <-session.C():
			evt = Event{Type: EventSession, Data: v}
		case v := <-notices.C():
			evt = Event{Type: EventNotice, Data: v}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-ctx.Done():
			return
		}

		evt.Timestamp = time.Now().UTC()
		if err := conn.WriteJSON(evt); err != nil {
			s.logger.WithField("error", err).Debug("Live: websocket write failed")
			return
		}
	}
}
