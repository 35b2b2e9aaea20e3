package preview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 60 * time.Second
)

type Server struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{hub: hub, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mx := chi.NewMux()
	mx.Get("/", s.serveIndex)
	mx.Get("/snapshot", s.serveSnapshot)
	mx.Get("/socket", s.serveSocket)
	mx.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.logResponse(r, http.StatusNotFound)
		http.NotFound(w, r)
	})
	return mx
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.logger.Info("preview: serving", "url", "http://"+l.Addr().String()+"/")
	if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) logResponse(r *http.Request, status int) {
	s.logger.Debug("preview: request", "method", r.Method, "path", r.URL.Path, "status", status)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
	s.logResponse(r, http.StatusOK)
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(s.hub.Latest())
	if err != nil {
		s.logResponse(r, http.StatusInternalServerError)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
	s.logResponse(r, http.StatusOK)
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("preview: upgrade", "err", err)
		return
	}
	s.logResponse(r, http.StatusSwitchingProtocols)
	endch := make(chan struct{})
	go s.read(c, endch)
	go s.write(c, endch)
}

func (s *Server) read(c *websocket.Conn, endch chan struct{}) {
	defer close(endch)
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("preview: websocket read", "err", err)
			}
			return
		}
	}
}

func (s *Server) write(c *websocket.Conn, endch chan struct{}) {
	defer c.Close()
	ch := make(chan *State, 10)
	st := s.hub.addListener(ch)
	defer s.hub.removeListener(ch)
	if err := send(c, st); err != nil {
		s.logger.Warn("preview: websocket send", "err", err)
		return
	}
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				s.logger.Info("preview: slow client dropped", "remote", c.RemoteAddr().String())
				return
			}
			if err := send(c, st); err != nil {
				s.logger.Warn("preview: websocket send", "err", err)
				return
			}
		case <-t.C:
			c.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn("preview: websocket ping", "err", err)
				return
			}
		case <-endch:
			return
		}
	}
}

func send(c *websocket.Conn, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteMessage(websocket.TextMessage, data)
}

const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>lou-lights</title>
<style>
body { background: #111; color: #ccc; font: 14px sans-serif; margin: 1em; }
canvas { display: block; width: 100%; height: 24px; margin: 4px 0 12px; background: #000; }
</style>
</head>
<body>
<div id="status">connecting</div>
<div id="strips"></div>
<script>
const strips = document.getElementById("strips");
const status = document.getElementById("status");
let canvases = [];
function draw(st) {
  if (canvases.length !== st.strips.length) {
    strips.innerHTML = "";
    canvases = st.strips.map(s => {
      const label = document.createElement("div");
      label.textContent = s.name + " (" + s.length + ")";
      const c = document.createElement("canvas");
      c.width = s.length;
      c.height = 1;
      strips.append(label, c);
      return c;
    });
  }
  canvases.forEach(c => c.getContext("2d").clearRect(0, 0, c.width, 1));
  for (const n of st.notes) {
    const ctx = canvases[n.strip].getContext("2d");
    ctx.fillStyle = n.color;
    ctx.fillRect(n.start, 0, n.end - n.start, 1);
  }
  status.textContent = (st.sustain ? "sustain " : "") + st.notes.map(n => n.name).join(" ");
}
function connect() {
  const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/socket");
  ws.onmessage = e => draw(JSON.parse(e.data));
  ws.onclose = () => { status.textContent = "disconnected"; setTimeout(connect, 1000); };
}
connect();
</script>
</body>
</html>
`
