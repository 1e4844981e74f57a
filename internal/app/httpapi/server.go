// Package httpapi exposes the webhook and admin HTTP surface.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/NairaLink/chat_layer/internal/app/metrics"
	"github.com/NairaLink/chat_layer/internal/app/services/users"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

const maxWebhookBody = 1 << 20

// MessageHandler consumes one inbound chat message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, text string)
}

// Broadcaster fans a message out to many users.
type Broadcaster interface {
	Broadcast(userIDs []string, message string, limit int) int
}

// Config carries the server's collaborators and secrets.
type Config struct {
	Engine      MessageHandler
	Broadcaster Broadcaster
	Users       *users.Service
	VerifyToken string
	JWTSecret   string
	// MaxBroadcast caps recipients per broadcast when > 0, regardless of
	// the limit the caller asked for.
	MaxBroadcast int
}

// Server routes webhook and admin traffic.
type Server struct {
	cfg    Config
	router *mux.Router
	log    *logger.Logger
}

// New constructs the HTTP server and its routes.
func New(cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	s := &Server{cfg: cfg, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/webhook", s.verifyWebhook).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.receiveWebhook).Methods(http.MethodPost)
	r.HandleFunc("/admin/broadcast", s.requireJWT(s.adminBroadcast)).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// verifyWebhook answers the channel's subscription handshake.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.cfg.VerifyToken && s.cfg.VerifyToken != "" {
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

// receiveWebhook accepts a batch of channel events and fans each text
// message out to the engine. The channel retries on non-200, so the
// handler always acks; bad payloads are logged and dropped.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.log.WithError(err).Warn("webhook body read failed")
		w.WriteHeader(http.StatusOK)
		return
	}
	if !gjson.ValidBytes(body) {
		s.log.Warn("webhook payload is not valid json")
		w.WriteHeader(http.StatusOK)
		return
	}

	delivered := 0
	gjson.GetBytes(body, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			change.Get("value.messages").ForEach(func(_, msg gjson.Result) bool {
				from := msg.Get("from").String()
				text := msg.Get("text.body").String()
				if from == "" || strings.TrimSpace(text) == "" {
					return true
				}
				s.cfg.Engine.HandleMessage(r.Context(), from, text)
				delivered++
				return true
			})
			return true
		})
		return true
	})

	if delivered == 0 {
		s.log.Debug("webhook batch carried no text messages")
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// requireJWT gates admin routes behind an HS256 bearer token.
func (s *Server) requireJWT(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.JWTSecret == "" {
			http.Error(w, "admin surface disabled", http.StatusForbidden)
			return
		}
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) adminBroadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
		Limit   int    `json:"limit"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	all, err := s.cfg.Users.List(r.Context())
	if err != nil {
		s.log.WithError(err).Error("list users for broadcast failed")
		http.Error(w, "broadcast failed", http.StatusInternalServerError)
		return
	}
	ids := make([]string, 0, len(all))
	for _, u := range all {
		ids = append(ids, u.ID)
	}

	limit := req.Limit
	if s.cfg.MaxBroadcast > 0 && (limit <= 0 || limit > s.cfg.MaxBroadcast) {
		limit = s.cfg.MaxBroadcast
	}

	queued := s.cfg.Broadcaster.Broadcast(ids, req.Message, limit)
	s.log.WithField("queued", queued).Info("admin broadcast accepted")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"queued": queued})
}
