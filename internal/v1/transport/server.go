// Package transport exposes the social-network engine over HTTP: JSON RPC
// endpoints for the request/reply operations and a websocket endpoint for
// the bidirectional timeline stream, plus health and metrics surfaces.
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/metrics"
	"github.com/chatnetlabs/chatnet/internal/v1/social"
	"github.com/chatnetlabs/chatnet/internal/v1/store"
)

// handshakeSentinel is the first frame a timeline client must send before
// any posts flow.
const handshakeSentinel = "0xFEE1DEAD"

// Reply msg values returned by the RPC endpoints.
const (
	MsgOK           = "ok"
	MsgDuplicate    = "duplicate"
	MsgUnknownUser  = "unknown user"
	MsgNotFollowing = "not following"
	MsgInvalid      = "invalid request"
)

// Request is the body of every RPC endpoint.
type Request struct {
	Username  string   `json:"username"`
	Arguments []string `json:"arguments,omitempty"`
}

// Reply is the body of every RPC response.
type Reply struct {
	Msg string `json:"msg"`
	// AllUsers and FollowingUsers are populated by the list endpoint.
	// FollowingUsers carries the caller's followers, matching the field
	// name clients already consume; Followees carries who the caller
	// actually follows.
	AllUsers       []string `json:"all_users,omitempty"`
	FollowingUsers []string `json:"following_users,omitempty"`
	Followees      []string `json:"followees,omitempty"`
}

// Frame is one timeline message in either direction.
type Frame struct {
	Username  string `json:"username"`
	Msg       string `json:"msg"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Server is the SNS HTTP/websocket front end.
type Server struct {
	registry *social.Registry
	store    *store.Store
	engine   *gin.Engine
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.Mutex
	streams map[*wsStream]struct{}
	closed  bool
}

// NewServer wires the routes for the given engine and store. allowedOrigins
// restricts browser clients; an empty list allows any origin, which suits
// the native CLI client.
func NewServer(registry *social.Registry, st *store.Store, allowedOrigins []string) *Server {
	s := &Server{
		registry: registry,
		store:    st,
		streams:  make(map[*wsStream]struct{}),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if len(allowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = allowedOrigins
		engine.Use(cors.New(corsCfg))
	}

	rpc := engine.Group("/v1/rpc")
	rpc.POST("/login", s.instrument("login", s.handleLogin))
	rpc.POST("/follow", s.instrument("follow", s.handleFollow))
	rpc.POST("/unfollow", s.instrument("unfollow", s.handleUnFollow))
	rpc.POST("/list", s.instrument("list", s.handleList))

	engine.GET("/v1/timeline", s.handleTimeline)

	engine.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/health/ready", func(c *gin.Context) {
		if err := s.store.Ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	return s
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks serving HTTP on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes every live timeline stream, then drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	streams := make([]*wsStream, 0, len(s.streams))
	for ws := range s.streams {
		streams = append(streams, ws)
	}
	s.mu.Unlock()

	for _, ws := range streams {
		ws.close()
	}

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// instrument wraps an RPC handler with a duration observation.
func (s *Server) instrument(method string, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(metrics.RPCDuration.WithLabelValues(method))
		defer timer.ObserveDuration()
		h(c)
	}
}

func (s *Server) handleLogin(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	if err := s.registry.Login(c.Request.Context(), req.Username); err != nil {
		c.JSON(http.StatusOK, Reply{Msg: replyMsg(err)})
		return
	}
	c.JSON(http.StatusOK, Reply{Msg: MsgOK})
}

func (s *Server) handleFollow(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	if len(req.Arguments) != 1 {
		c.JSON(http.StatusBadRequest, Reply{Msg: MsgInvalid})
		return
	}
	if err := s.registry.Follow(c.Request.Context(), req.Username, req.Arguments[0]); err != nil {
		c.JSON(http.StatusOK, Reply{Msg: replyMsg(err)})
		return
	}
	c.JSON(http.StatusOK, Reply{Msg: MsgOK})
}

func (s *Server) handleUnFollow(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	if len(req.Arguments) != 1 {
		c.JSON(http.StatusBadRequest, Reply{Msg: MsgInvalid})
		return
	}
	if err := s.registry.UnFollow(c.Request.Context(), req.Username, req.Arguments[0]); err != nil {
		c.JSON(http.StatusOK, Reply{Msg: replyMsg(err)})
		return
	}
	c.JSON(http.StatusOK, Reply{Msg: MsgOK})
}

func (s *Server) handleList(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	res, err := s.registry.List(req.Username)
	if err != nil {
		c.JSON(http.StatusOK, Reply{Msg: replyMsg(err)})
		return
	}
	c.JSON(http.StatusOK, Reply{
		Msg:            MsgOK,
		AllUsers:       res.AllUsers,
		FollowingUsers: res.Followers,
		Followees:      res.Followees,
	})
}

func (s *Server) bind(c *gin.Context) (Request, bool) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, Reply{Msg: MsgInvalid})
		return Request{}, false
	}
	return req, true
}

// replyMsg maps engine errors to the wire msg values.
func replyMsg(err error) string {
	switch {
	case errors.Is(err, social.ErrDuplicate):
		return MsgDuplicate
	case errors.Is(err, social.ErrUnknownUser):
		return MsgUnknownUser
	case errors.Is(err, social.ErrNotFollowing):
		return MsgNotFollowing
	default:
		return err.Error()
	}
}

// handleTimeline upgrades to a websocket and runs the stream until the
// client disconnects. The connection starts pending: the first frame must
// be the handshake sentinel naming the query user, anything else closes
// the socket before the stream attaches.
func (s *Server) handleTimeline(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, Reply{Msg: MsgInvalid})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	ctx := context.WithValue(c.Request.Context(), logging.ConnIDKey, uuid.NewString())
	ctx = context.WithValue(ctx, logging.UsernameKey, username)

	ws := &wsStream{conn: conn}

	var first Frame
	if err := conn.ReadJSON(&first); err != nil || first.Msg != handshakeSentinel || first.Username != username {
		logging.Warn(ctx, "timeline handshake rejected", zap.Error(err))
		ws.close()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ws.close()
		return
	}
	s.streams[ws] = struct{}{}
	s.mu.Unlock()

	if err := s.registry.AttachTimeline(username, ws); err != nil {
		logging.Warn(ctx, "timeline attach failed", zap.Error(err))
		s.dropStream(ws)
		ws.close()
		return
	}
	logging.Info(ctx, "timeline attached")

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		if frame.Username != username {
			// A frame claiming another author is a protocol violation.
			logging.Warn(ctx, "timeline frame author mismatch",
				zap.String("claimed", frame.Username))
			break
		}
		if frame.Msg == "" {
			continue
		}
		if _, err := s.registry.Publish(ctx, username, frame.Msg); err != nil {
			logging.Error(ctx, "publish failed", zap.Error(err))
		}
	}

	s.registry.DetachTimeline(username, ws)
	s.dropStream(ws)
	ws.close()
	logging.Info(ctx, "timeline detached")
}

func (s *Server) dropStream(ws *wsStream) {
	s.mu.Lock()
	delete(s.streams, ws)
	s.mu.Unlock()
}

// wsStream adapts one websocket connection to the engine's stream
// interface. The engine serializes Send calls per user; the local mutex
// only guards against a concurrent close during shutdown.
type wsStream struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (w *wsStream) Send(p social.Post) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("transport: stream closed")
	}
	return w.conn.WriteJSON(Frame{
		Username:  p.Username,
		Msg:       p.Text,
		Timestamp: p.Timestamp.Format(time.RFC3339),
	})
}

func (w *wsStream) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"),
		time.Now().Add(time.Second))
	_ = w.conn.Close()
}
