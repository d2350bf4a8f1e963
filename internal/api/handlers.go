package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/bidroom/internal/server"
	"github.com/npezzotti/bidroom/internal/types"
)

const healthCheckTimeout = 2 * time.Second

type NotificationResponse struct {
	Delivered bool `json:"delivered"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Connections int            `json:"connections"`
	Stats       map[string]any `json:"stats,omitempty"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("json encode: %v", err)
	}
}

func (s *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("error upgrading connection: %v", err)
		return
	}

	client := server.NewClient(identity, conn, s.cs, s.log)
	if err := s.cs.RegisterClient(client); err != nil {
		s.log.Infow("refusing connection", "user", identity.UserId, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}

// pushNotification lets internal services hand a notification to a user's
// open connections.
func (s *App) pushNotification(w http.ResponseWriter, r *http.Request) {
	var n types.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := n.Validate(); err != nil {
		errResp := NewBadRequestError()
		errResp.Err = err
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	delivered := s.cs.PushNotification(n.UserId, n.Payload)
	s.writeJson(w, http.StatusAccepted, NotificationResponse{Delivered: delivered})
}

func (s *App) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Warnf("health check: database ping: %v", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := HealthResponse{
		Status:      "ok",
		Connections: s.cs.NumClients(),
	}
	if s.stats != nil {
		resp.Stats = s.stats.Snapshot()
	}

	s.writeJson(w, http.StatusOK, resp)
}
