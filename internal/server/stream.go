package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"f2b/internal/apperr"
	"f2b/internal/pipeline"
)

// handleGenerateStream streams pipeline events as server-sent events and
// ends with "data: [DONE]".
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	url, err := s.decodeGenerate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.New(apperr.KindInternal, "streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := r.Context()
	emit := func(ev pipeline.Event) error {
		if err := client.Err(); err != nil {
			return err
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// In-flight stage work outlives a disconnect; the run stops at the next
	// stage boundary once emit fails.
	_, err = s.runner.Stream(context.WithoutCancel(client), url, emit)
	if errors.Is(err, pipeline.ErrConsumerGone) {
		s.log.Info().Str("repo_url", url).Msg("server: stream client gone")
		return
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsConn serializes writes from the pipeline and the ping loop.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

// handleGenerateWS streams pipeline events over a websocket and ends with
// {"type":"done"}.
func (s *Server) handleGenerateWS(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("repo_url"))
	if err := s.validate.Struct(GenerateRequest{RepoURL: url}); err != nil {
		writeError(w, apperr.InvalidInput("repo_url must be a GitHub repository URL"))
		return
	}
	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	_ = raw.SetReadDeadline(time.Now().Add(wsPongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-closed:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	emit := func(ev pipeline.Event) error {
		select {
		case <-closed:
			return errors.New("websocket closed")
		default:
		}
		return conn.writeJSON(ev)
	}
	_, err = s.runner.Stream(ctx, url, emit)
	if errors.Is(err, pipeline.ErrConsumerGone) {
		return
	}
	_ = conn.writeJSON(map[string]string{"type": "done"})
	conn.close()
}
