package serv

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dosco/restjin/core"
	"github.com/go-http-utils/headers"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxReadBytes       = 100000 // 100Kb
	maxIPLimiters      = 10000
	headerRequestID    = "X-Request-Id"
	contentTypeJSON    = "application/json"
	errorInternalError = "internal server error"
)

type ctxKey int

const requestIDKey ctxKey = iota

type errorResp struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// requestID returns the id the request was tagged with
func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// withRequestID tags every request with an id, reusing the one the client
// sent if any
func withRequestID(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set(headerRequestID, id)
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	}
	return http.HandlerFunc(fn)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withLogging logs one line per request
func withLogging(log *zap.Logger, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)

		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request-id", requestID(r.Context())))
	}
	return http.HandlerFunc(fn)
}

// rateLimiter limits requests per client ip. The ip is read from the
// configured header when set, else from the remote address.
func rateLimiter(s *Service, h http.Handler) http.Handler {
	limiters, err := lru.New[string, *rate.Limiter](maxIPLimiters)
	if err != nil {
		s.log.Fatalf("api: error initializing rate limiter: %s", err)
	}
	rl := s.conf.RateLimiter

	fn := func(w http.ResponseWriter, r *http.Request) {
		var ip string
		if rl.IPHeader != "" {
			ip = r.Header.Get(rl.IPHeader)
		}
		if ip == "" {
			var err error
			if ip, _, err = net.SplitHostPort(r.RemoteAddr); err != nil {
				ip = r.RemoteAddr
			}
		}

		l, ok := limiters.Get(ip)
		if !ok {
			l = rate.NewLimiter(rate.Limit(rl.Rate), rl.Bucket)
			limiters.Add(ip, l)
		}

		if !l.Allow() {
			renderErr(w, r, http.StatusTooManyRequests, errors.New("too many requests"))
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// withCORS applies the configured CORS policy
func withCORS(s *Service, h http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.conf.AllowedOrigins,
		AllowedHeaders: s.conf.AllowedHeaders,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowCredentials: true,
		Debug:            s.conf.DebugCORS,
	})
	return c.Handler(h)
}

// withMiddleware wraps the router with the middleware enabled in the config
func withMiddleware(s *Service, h http.Handler) http.Handler {
	if s.conf.rateLimiterEnable() {
		h = rateLimiter(s, h)
	}
	if len(s.conf.AllowedOrigins) != 0 {
		h = withCORS(s, h)
	}
	if s.conf.HTTPGZip {
		h = gzhttp.GzipHandler(h)
	}
	h = withLogging(s.zlog, h)
	return withRequestID(setServerHeader(h))
}

// Set the server header
func setServerHeader(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headers.Server, serverName)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// readJSON decodes the request body into v
func readJSON(r *http.Request, v interface{}) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxReadBytes))
	if err != nil {
		return errors.Wrap(err, "error reading request body")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return core.NewError(core.KindInvalidGraph, "invalid json body: %s", err)
	}
	return nil
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(headers.ContentType, contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// statusOf maps an engine error to an HTTP status. Errors that did not come
// from the engine are server errors.
func statusOf(err error) int {
	switch core.KindOf(err) {
	case "":
		return http.StatusInternalServerError
	case core.KindNotFound, core.KindUnknownTable:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// renderError writes err as a JSON error. Server errors are logged and their
// detail is only sent outside production.
func (s *Service) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.Errorw("request failed", "error", err, "request-id", requestID(r.Context()))
		if s.conf.Production {
			err = errors.New(errorInternalError)
		}
	}
	renderErr(w, r, status, err)
}

func renderErr(w http.ResponseWriter, r *http.Request, status int, err error) {
	renderJSON(w, status, errorResp{
		Error:     err.Error(),
		Kind:      string(core.KindOf(err)),
		RequestID: requestID(r.Context()),
	})
}
