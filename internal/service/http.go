package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nkeys"
	"github.com/sirupsen/logrus"
	"github.com/synadia-labs/cli-harness/internal/config"
	"github.com/synadia-labs/cli-harness/internal/harness"
)

type RequestId string

const (
	RequestIdKey RequestId = "request_id"
)

type Middleware func(http.Handler) http.Handler

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
	Handler() http.Handler
	// Token is the bearer token clients must send, empty without auth.
	Token() string
}

type httpServer struct {
	server *http.Server
	token  string
	log    logrus.FieldLogger
}

func (s *httpServer) Start() error {
	s.log.Infof("http server started on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *httpServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *httpServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *httpServer) Token() string {
	return s.token
}

// NewHTTPServer exposes exec on GET /ping, GET /env and POST /command.
// With auth enabled the configured client token is required, or a fresh
// one is generated and logged.
func NewHTTPServer(cfg *config.Config, exec Executor, log logrus.FieldLogger) (HTTPServer, error) {
	port := cfg.Http.Port
	if port == "" {
		port = config.DefaultHttpPort
	}

	middlewares := []Middleware{requestIdMiddleware, logMiddleware(log)}

	var token string
	if cfg.Http.UseAuth {
		token = cfg.Client.ApiToken
		if token == "" {
			var err error
			token, err = createToken()
			if err != nil {
				return nil, err
			}
			log.Info("--------------------------------")
			log.Infof("http server api token: %s", token)
			log.Infof("to use the token include, 'Authorization: Bearer %s' in the request header", token)
			log.Info("--------------------------------")
		}
		middlewares = append(middlewares, authMiddleware(token))
	}

	mux := http.NewServeMux()

	middleware := func(next http.Handler) http.Handler {
		// Apply middlewares in reverse order so they execute in the correct sequence
		handler := next
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}

	// ping
	var ping http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exec.Ping()))
	})
	mux.Handle("GET /ping", middleware(ping))

	// env
	var env http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(exec.GetEnvironment())
	})
	mux.Handle("GET /env", middleware(env))

	// command
	var command http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req harness.Request
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			http.Error(w, `expected request format is {"command": "string", "inputs": ["string"], "raw": bool}`, http.StatusBadRequest)
			return
		}
		envelope := exec.RunCommand(r.Context(), req)
		log.WithFields(logrus.Fields{
			"request_id": r.Context().Value(RequestIdKey),
			"raw":        req.Raw,
			"status":     envelope.Status,
			"exit_code":  envelope.ExitCode,
		}).Debugf("ran command %q", req.Command)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(envelope)
	})
	mux.Handle("POST /command", middleware(command))

	return &httpServer{
		server: &http.Server{Addr: fmt.Sprintf(":%s", port), Handler: mux},
		token:  token,
		log:    log,
	}, nil
}

// Unique ID for each request
func requestIdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), RequestIdKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Log requests
func logMiddleware(log logrus.FieldLogger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestId := r.Context().Value(RequestIdKey)
			if requestId == nil {
				requestId = ""
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"request_id": requestId,
				"status":     rec.status,
				"duration":   time.Since(start),
			}).Info("request handled")
		})
	}
}

// Authorize requests with a Bearer token
func authMiddleware(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := r.Header.Get("Authorization")
			if bearer != "Bearer "+token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Generate a random API token.
func createToken() (string, error) {
	nkey, err := nkeys.CreatePair(nkeys.PrefixByteUser)
	if err != nil {
		return "", fmt.Errorf("error creating nkey pair: %s", err)
	}

	token, err := nkey.PublicKey()
	if err != nil {
		return "", fmt.Errorf("error getting public key: %s", err)
	}

	return string(token), nil
}
