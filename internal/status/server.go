package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

type subscriber struct {
	send chan []byte
}

// Server exposes consumer status over HTTP and streams tick updates to
// websocket clients.
type Server struct {
	server    *http.Server
	upgrader  websocket.Upgrader
	directory *charging.Directory
	settings  *config.Settings
	config    *config.Config
	logger    *logrus.Logger
	gatherer  prometheus.Gatherer

	mutex       sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
}

func NewServer(cfg *config.Config, directory *charging.Directory, settings *config.Settings, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	return &Server{
		directory:   directory,
		settings:    settings,
		config:      cfg,
		logger:      logger,
		gatherer:    gatherer,
		subscribers: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/settings", s.handleSettings)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	s.logger.Infof("Starting status server on %s", addr)

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down status server...")
		s.server.Close()
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func (s *Server) Stop() {
	if s.server != nil {
		s.logger.Info("Stopping status server")
		s.server.Close()
	}
}

// Broadcast pushes the manager's status to its websocket subscribers. Slow
// subscribers miss updates instead of blocking the caller.
func (s *Server) Broadcast(manager *charging.Manager, _ charging.TickReport) {
	id := manager.Consumer().ID

	s.mutex.RLock()
	subs := s.subscribers[id]
	if len(subs) == 0 {
		s.mutex.RUnlock()
		return
	}
	targets := make([]*subscriber, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	s.mutex.RUnlock()

	payload, err := json.Marshal(manager.GetStatus())
	if err != nil {
		s.logger.Errorf("Failed to encode status for %s: %v", id, err)
		return
	}

	for _, sub := range targets {
		select {
		case sub.send <- payload:
		default:
			s.logger.Debugf("Dropping status update for slow subscriber of %s", id)
		}
	}
}

func (s *Server) SubscriberCount(consumerID string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.subscribers[consumerID])
}

func (s *Server) subscribe(consumerID string) *subscriber {
	sub := &subscriber{send: make(chan []byte, 8)}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.subscribers[consumerID] == nil {
		s.subscribers[consumerID] = make(map[*subscriber]struct{})
	}
	s.subscribers[consumerID][sub] = struct{}{}
	return sub
}

func (s *Server) unsubscribe(consumerID string, sub *subscriber) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.subscribers[consumerID], sub)
	if len(s.subscribers[consumerID]) == 0 {
		delete(s.subscribers, consumerID)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	consumers := make([]map[string]interface{}, 0)
	for _, manager := range s.directory.Managers() {
		consumers = append(consumers, manager.GetStatus())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"consumers": consumers,
		"settings":  settingsStatus(s.settings),
	})
}

type settingsRequest struct {
	DeficitThreshold *float64 `json:"deficit_threshold,omitempty"`
	Challenge        *string  `json:"challenge,omitempty"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost, http.MethodPut:
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid settings payload", http.StatusBadRequest)
			return
		}
		if req.Challenge != nil {
			level, err := config.ParseChallengeLevel(*req.Challenge)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := s.settings.SetChallengeLevel(level); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if req.DeficitThreshold != nil {
			s.settings.SetDeficitThreshold(*req.DeficitThreshold)
		}
		s.logger.Infof("Settings updated over HTTP")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, settingsStatus(s.settings))
}

func settingsStatus(settings *config.Settings) map[string]interface{} {
	return map[string]interface{}{
		"deficit_threshold":   settings.DeficitThreshold(),
		"challenge":           settings.ChallengeLevel().String(),
		"recharge_penalty":    settings.RechargePenalty(),
		"charger_icons":       settings.ChargerIcons().String(),
		"helm_energy_display": settings.EnergyDisplay().String(),
		"aux_console_enabled": settings.AuxConsoleEnabled(),
		"debug_logs_enabled":  settings.DebugLogsEnabled(),
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	consumerID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if consumerID == "" {
		http.Error(w, "Consumer ID required in path", http.StatusBadRequest)
		return
	}

	manager, err := s.directory.Manager(consumerID)
	if err != nil {
		s.logger.Warnf("Status stream requested for unknown consumer: %s", consumerID)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.subscribe(consumerID)
	defer s.unsubscribe(consumerID, sub)

	s.logger.Infof("Status client connected for %s", consumerID)
	defer s.logger.Infof("Status client disconnected for %s", consumerID)

	initial, err := json.Marshal(manager.GetStatus())
	if err == nil {
		sub.send <- initial
	}

	// The reader only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case payload := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Errorf("Write message error for %s: %v", consumerID, err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
