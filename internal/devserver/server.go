package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/tabsync/pkg/httpserver"
	"github.com/dmitrymomot/tabsync/pkg/jwt"
	"github.com/dmitrymomot/tabsync/pkg/logger"
	"github.com/dmitrymomot/tabsync/pkg/realtime"
	"github.com/dmitrymomot/tabsync/pkg/session"
)

var (
	ErrClosed      = errors.New("devserver.closed")
	ErrInvalidUser = errors.New("devserver.invalid_user")
)

// Server is a development realtime backend. It issues tokens, accepts
// authenticated websocket clients, answers heartbeats, tracks room
// membership and fans room events out to members.
type Server struct {
	tokens *jwt.Service
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	id    string
	conn  *websocket.Conn
	user  session.User
	rooms map[realtime.Room]bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Server signing tokens with cfg.SigningKey.
func New(cfg Config, opts ...Option) (*Server, error) {
	tokens, err := jwt.NewFromString(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	s := &Server{
		tokens:  tokens,
		config:  cfg,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("devserver"))
	return s, nil
}

// Routes returns the HTTP surface:
//
//	GET  /healthz                liveness
//	POST /token                  issue a token for a user and role
//	POST /rooms/{room}/events    broadcast {"event","data"} to room members
//	GET  /ws                     authenticated websocket endpoint
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(s.logger))
	r.Post("/token", s.handleToken)
	r.Post("/rooms/{room}/events", s.handlePublish)

	r.Group(func(r chi.Router) {
		r.Use(jwt.Guard[session.Claims](s.tokens,
			jwt.FromAny(jwt.FromHeader, jwt.FromQuery(realtime.TokenQueryParam))))
		r.Get("/ws", s.handleWS)
	})
	return r
}

// Issue signs a token for user acting as role.
func (s *Server) Issue(user session.User, role session.Role, ttl time.Duration) (string, time.Time, error) {
	if user.Empty() {
		return "", time.Time{}, ErrInvalidUser
	}
	if !role.Valid() {
		return "", time.Time{}, session.ErrInvalidRole
	}
	if ttl <= 0 {
		ttl = s.config.TokenTTL
	}

	now := s.now()
	exp := now.Add(ttl)
	token, err := s.tokens.Generate(session.Claims{
		StandardClaims: jwt.StandardClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: exp.Unix(),
		},
		Role:  role,
		Email: user.Email,
		Name:  user.Name,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Unix(exp.Unix(), 0), nil
}

// Broadcast sends an event to every member of room and returns how many
// clients it reached.
func (s *Server) Broadcast(ctx context.Context, room realtime.Room, name realtime.EventName, data any) (int, error) {
	if !room.Valid() {
		return 0, realtime.ErrUnknownRoom
	}
	env, err := realtime.NewEnvelope(name, data)
	if err != nil {
		return 0, err
	}
	frame, err := realtime.MarshalFrame(env)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c.rooms[room] {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if err := s.write(ctx, c, frame); err != nil {
			s.logger.WarnContext(ctx, "broadcast write failed", slog.String("client", c.id), logger.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Members returns the number of clients joined to room.
func (s *Server) Members(room realtime.Room) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c := range s.clients {
		if c.rooms[room] {
			n++
		}
	}
	return n
}

// DisconnectAll closes every client connection as if the server restarted.
func (s *Server) DisconnectAll(reason string) int {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, reason)
	}
	return len(conns)
}

// Close disconnects everybody and refuses new clients.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.DisconnectAll("server shutting down")
	return nil
}

type tokenRequest struct {
	UserID string       `json:"userId"`
	Email  string       `json:"email"`
	Name   string       `json:"name"`
	Role   session.Role `json:"role"`
	TTL    string       `json:"ttl,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type publishRequest struct {
	Event realtime.EventName `json:"event"`
	Data  json.RawMessage    `json:"data,omitempty"`
}

type publishResponse struct {
	Delivered int `json:"delivered"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = session.RoleUser
	}
	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = d
	}

	token, exp, err := s.Issue(session.User{ID: req.UserID, Email: req.Email, Name: req.Name}, req.Role, ttl)
	switch {
	case errors.Is(err, ErrInvalidUser), errors.Is(err, session.ErrInvalidRole):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "token issue failed", logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.logger.InfoContext(r.Context(), "token issued", logger.UserID(req.UserID), logger.Role(req.Role))
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, ExpiresAt: exp})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	room := realtime.Room(chi.URLParam(r, "room"))
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Event == "" {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}
	n, err := s.Broadcast(r.Context(), room, req.Event, data)
	switch {
	case errors.Is(err, realtime.ErrUnknownRoom):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, publishResponse{Delivered: n})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwt.ClaimsFromContext[*session.Claims](r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{realtime.Subprotocol},
		OriginPatterns: s.config.OriginPatterns,
	})
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket accept failed", logger.Error(err))
		return
	}
	if conn.Subprotocol() != realtime.Subprotocol {
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol "+realtime.Subprotocol+" required")
		return
	}
	if s.config.ReadLimit > 0 {
		conn.SetReadLimit(s.config.ReadLimit)
	}

	c := &client{
		id:    uuid.NewString(),
		conn:  conn,
		user:  claims.User(),
		rooms: make(map[realtime.Room]bool),
	}
	if !s.add(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.remove(c)

	log := s.logger.With(slog.String("client", c.id), logger.UserID(c.user.ID))
	log.InfoContext(r.Context(), "client connected", logger.Role(claims.Role))

	s.serve(r.Context(), c, log)
}

// serve reads frames until the connection closes.
func (s *Server) serve(ctx context.Context, c *client, log *slog.Logger) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			log.InfoContext(ctx, "client disconnected", slog.Int("status", int(websocket.CloseStatus(err))))
			return
		}
		env, err := realtime.UnmarshalFrame(data)
		if err != nil {
			log.WarnContext(ctx, "dropping malformed frame", logger.Error(err))
			continue
		}

		if env.Event == realtime.EventPing {
			s.pong(ctx, c, log)
			continue
		}

		prefix, action, found := strings.Cut(string(env.Event), ":")
		room := realtime.Room(prefix)
		if !found || !room.Valid() {
			log.DebugContext(ctx, "ignoring client event", logger.Event(string(env.Event)))
			continue
		}
		switch action {
		case "subscribe":
			s.setMember(c, room, true)
			log.DebugContext(ctx, "joined room", logger.Room(string(room)))
		case "unsubscribe":
			s.setMember(c, room, false)
			log.DebugContext(ctx, "left room", logger.Room(string(room)))
		default:
			log.DebugContext(ctx, "ignoring client event", logger.Event(string(env.Event)))
		}
	}
}

func (s *Server) pong(ctx context.Context, c *client, log *slog.Logger) {
	env, err := realtime.NewEnvelope(realtime.EventPong, realtime.Pong{At: s.now()})
	if err != nil {
		return
	}
	frame, err := realtime.MarshalFrame(env)
	if err != nil {
		return
	}
	if err := s.write(ctx, c, frame); err != nil {
		log.DebugContext(ctx, "pong write failed", logger.Error(err))
	}
}

func (s *Server) write(ctx context.Context, c *client, frame []byte) error {
	if s.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.WriteTimeout)
		defer cancel()
	}
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

func (s *Server) add(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

func (s *Server) setMember(c *client, room realtime.Room, member bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if member {
		c.rooms[room] = true
		return
	}
	delete(c.rooms, room)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
