package devserver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goConsole/internal/logging"
	"github.com/MrEthical07/goConsole/internal/rate"
	"github.com/MrEthical07/goConsole/jwt"
	"github.com/MrEthical07/goConsole/password"
	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 10

// Config configures a Server.
type Config struct {
	// Latency is added before every auth endpoint answers.
	Latency  time.Duration
	TokenTTL time.Duration
	Issuer   string
	Audience string
	// Password selects argon2id cost. Zero value uses password.DevConfig.
	Password password.Config
}

// DefaultConfig returns the configuration used by cmd/goconsole-devserver.
func DefaultConfig() Config {
	return Config{
		Latency:  0,
		TokenTTL: 8 * time.Hour,
		Issuer:   "goconsole-devserver",
		Audience: "goconsole",
		Password: password.DevConfig(),
	}
}

// Operator is a seeded console account. Secret is plaintext and is hashed
// by AddOperator.
type Operator struct {
	ID         string
	Name       string
	Email      string
	Role       string
	Secret     string
	Attributes map[string]any
}

type account struct {
	id         string
	name       string
	email      string
	role       string
	secretHash string
	attributes map[string]any
}

// Server is an http.Handler serving the admin auth endpoints.
type Server struct {
	config  Config
	logger  *slog.Logger
	hasher  *password.Hasher
	tokens  *jwt.Manager
	limiter *rate.Limiter
	mux     *http.ServeMux

	mu      sync.RWMutex
	byEmail map[string]*account
	byID    map[string]*account
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLimiter enables failed-login throttling.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithTokenManager replaces the generated signing keys.
func WithTokenManager(m *jwt.Manager) Option {
	return func(s *Server) {
		if m != nil {
			s.tokens = m
		}
	}
}

// New builds a Server with fresh ed25519 signing keys and no operators.
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("devserver TokenTTL must be > 0")
	}
	if cfg.Latency < 0 {
		return nil, errors.New("devserver Latency must be >= 0")
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = password.DevConfig()
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  cfg,
		logger:  logging.Discard(),
		hasher:  hasher,
		byEmail: make(map[string]*account),
		byID:    make(map[string]*account),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tokens == nil {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		s.tokens, err = jwt.NewManager(jwt.Config{
			TTL:           cfg.TokenTTL,
			SigningMethod: jwt.MethodEd25519,
			PrivateKey:    priv,
			PublicKey:     pub,
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			Leeway:        5 * time.Second,
			KeyID:         uuid.NewString(),
		})
		if err != nil {
			return nil, err
		}
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /profile", s.handleProfile)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return s, nil
}

// AddOperator hashes op.Secret and registers the account. An empty ID is
// replaced by a random UUID, which is returned.
func (s *Server) AddOperator(op Operator) (string, error) {
	email := normalizeIdentifier(op.Email)
	if email == "" {
		return "", errors.New("operator email is required")
	}
	hash, err := s.hasher.Hash(op.Secret)
	if err != nil {
		return "", fmt.Errorf("hash secret for %s: %w", email, err)
	}

	id := op.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return "", fmt.Errorf("operator %s already exists", email)
	}
	if _, exists := s.byID[id]; exists {
		return "", fmt.Errorf("operator id %s already exists", id)
	}
	acct := &account{
		id:         id,
		name:       op.Name,
		email:      email,
		role:       op.Role,
		secretHash: hash,
		attributes: op.Attributes,
	}
	s.byEmail[email] = acct
	s.byID[id] = acct
	return id, nil
}

// RemoveOperator deletes the account; its outstanding tokens stop resolving
// to a profile.
func (s *Server) RemoveOperator(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.byID[id]; ok {
		delete(s.byID, id)
		delete(s.byEmail, acct.email)
	}
}

// Tokens exposes the token manager, e.g. to mint tokens in tests.
func (s *Server) Tokens() *jwt.Manager {
	return s.tokens
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", reqID)

	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	s.logger.Info("request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		logging.Duration(time.Since(started)),
		logging.RequestID(reqID),
	)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type profileResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Role       string         `json:"role"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.delay(r.Context()) {
		return
	}

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "Body must be JSON."})
		return
	}
	identifier := normalizeIdentifier(req.Identifier)
	if identifier == "" || req.Secret == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "identifier and secret are required."})
		return
	}

	ip := clientIP(r)
	if s.limiter != nil {
		if err := s.limiter.CheckLogin(r.Context(), identifier, ip); err != nil {
			s.writeLimited(w, r, identifier, err)
			return
		}
	}

	s.mu.RLock()
	acct := s.byEmail[identifier]
	s.mu.RUnlock()

	ok := false
	if acct == nil {
		s.hasher.VerifyUnknown(req.Secret)
	} else {
		var err error
		ok, err = s.hasher.Verify(req.Secret, acct.secretHash)
		if err != nil {
			s.logger.Error("stored hash unreadable", slog.String("operator", acct.id), logging.Error(err))
			ok = false
		}
	}

	if !ok {
		if s.limiter != nil {
			if err := s.limiter.RecordFailure(r.Context(), identifier, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
				s.logger.Warn("rate limiter unavailable", logging.Error(err))
			}
		}
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_credentials", Message: "Invalid email or password."})
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(r.Context(), identifier); err != nil {
			s.logger.Warn("rate limiter reset failed", logging.Error(err))
		}
	}

	token, err := s.tokens.Issue(acct.id, acct.role)
	if err != nil {
		s.logger.Error("issue token", logging.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
		return
	}
	exp, _ := jwt.ExpiresAt(token)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !s.delay(r.Context()) {
		return
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_token"})
		return
	}

	s.mu.RLock()
	acct := s.byID[claims.Subject]
	s.mu.RUnlock()
	if acct == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unknown_operator"})
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ID:         acct.id,
		Name:       acct.name,
		Email:      acct.email,
		Role:       acct.role,
		Attributes: acct.attributes,
	})
}

func (s *Server) writeLimited(w http.ResponseWriter, r *http.Request, identifier string, err error) {
	if !errors.Is(err, rate.ErrRateLimited) {
		s.logger.Warn("rate limiter unavailable", logging.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
		return
	}
	if ra := s.limiter.RetryAfter(r.Context(), identifier); ra > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ra.Seconds()))))
	}
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "Too many attempts. Try again later."})
}

// delay sleeps for the configured latency. It reports false when the
// client went away first.
func (s *Server) delay(ctx context.Context) bool {
	if s.config.Latency <= 0 {
		return true
	}
	t := time.NewTimer(s.config.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func normalizeIdentifier(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	return token, token != ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
