// Package serv runs the restjin HTTP service. It reads the configuration,
// opens the configured connections and serves the generated REST routes.
package serv

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dosco/restjin/core"
	"github.com/dosco/restjin/serv/internal/util"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var version string

const (
	serverName = "restjin"
	defaultHP  = "0.0.0.0:8080"
)

// Service is a running instance of the restjin service
type Service struct {
	conf *Config
	log  *zap.SugaredLogger
	zlog *zap.Logger
	eng  *core.Engine
	dbs  map[string]*sql.DB
	srv  *http.Server
}

type Option func(*Service) error

// OptionSetLogger sets the logger used by the service and its engine
func OptionSetLogger(zlog *zap.Logger) Option {
	return func(s *Service) error {
		s.zlog = zlog
		s.log = zlog.Sugar()
		return nil
	}
}

// NewService creates the service and opens every configured connection
func NewService(conf *Config, options ...Option) (*Service, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		conf: conf,
		dbs:  make(map[string]*sql.DB),
	}

	for _, op := range options {
		if err := op(s); err != nil {
			return nil, err
		}
	}

	if s.zlog == nil {
		s.zlog = util.NewLogger(conf.ShouldUseJSONLogs(), conf.LogLevel)
		s.log = s.zlog.Sugar()
	}

	s.initHostPort()

	var err error
	s.eng, err = core.New(&conf.Core, core.OptionSetLogger(s.log))
	if err != nil {
		return nil, err
	}

	if err := s.initConnections(context.Background()); err != nil {
		s.closeDBs()
		return nil, err
	}
	return s, nil
}

// Engine returns the engine the service runs requests on
func (s *Service) Engine() *core.Engine {
	return s.eng
}

// initHostPort resolves the listen address from host_port and the HOST
// and PORT overrides
func (s *Service) initHostPort() {
	hp := strings.SplitN(s.conf.HostPort, ":", 2)

	if len(hp) == 2 {
		if s.conf.Host != "" {
			hp[0] = s.conf.Host
		}

		if s.conf.Port != "" {
			hp[1] = s.conf.Port
		}

		s.conf.hostPort = fmt.Sprintf("%s:%s", hp[0], hp[1])
	}

	if s.conf.hostPort == "" {
		s.conf.hostPort = defaultHP
	}
}

// Handler returns the HTTP handler serving all routes
func (s *Service) Handler() http.Handler {
	return routesHandler(s, chi.NewRouter())
}

// Start the HTTP server. It blocks until the server is shut down by an
// interrupt signal.
func (s *Service) Start() error {
	s.srv = &http.Server{
		Addr:              s.conf.hostPort,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("shutdown signal received")
		}
		close(idleConnsClosed)
	}()

	s.srv.RegisterOnShutdown(func() {
		s.closeDBs()
		s.log.Info("shutdown complete")
	})

	ver := version
	if ver == "" {
		ver = "not-set"
	}

	s.zlog.Info("restjin started",
		zap.String("version", ver),
		zap.String("host-port", s.conf.hostPort),
		zap.String("app-name", s.conf.AppName),
		zap.String("env", os.Getenv("GO_ENV")),
		zap.Bool("production", s.conf.Production),
		zap.Strings("connections", s.eng.Connections()),
	)

	l, err := net.Listen("tcp", s.conf.hostPort)
	if err != nil {
		return errors.Wrap(err, "failed to init port")
	}

	if err := s.srv.Serve(l); err != http.ErrServerClosed {
		return errors.Wrap(err, "failed to start")
	}
	<-idleConnsClosed
	return nil
}

// Close closes the database pools without running the server
func (s *Service) Close() {
	s.closeDBs()
}
