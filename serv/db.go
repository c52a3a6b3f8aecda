package serv

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	"github.com/dosco/restjin/core"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const maxOpenRetries = 50

// openDB opens and pings the database behind a connection, retrying while
// the database comes up
func openDB(cc core.ConnectionConfig, dbc Database, log *zap.SugaredLogger) (*sql.DB, error) {
	var err error

	for i := 0; ; i++ {
		var db *sql.DB
		if db, err = openDBOnce(cc, dbc); err == nil {
			return db, nil
		}
		log.Warnf("database %s: %s", cc.Name, err)

		if i >= maxOpenRetries {
			return nil, err
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
}

// openDBOnce attempts a single database connection without retries
func openDBOnce(cc core.ConnectionConfig, dbc Database) (*sql.DB, error) {
	db, err := sqlOpen(cc)
	if err != nil {
		return nil, errors.Wrap(err, "database open")
	}

	db.SetMaxIdleConns(dbc.PoolSize)
	db.SetMaxOpenConns(dbc.MaxConnections)
	db.SetConnMaxIdleTime(dbc.MaxConnIdleTime)
	db.SetConnMaxLifetime(dbc.MaxConnLifeTime)

	ctx := context.Background()
	if dbc.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbc.PingTimeout)
		defer cancel()
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "database ping")
	}
	return db, nil
}

func sqlOpen(cc core.ConnectionConfig) (*sql.DB, error) {
	switch dbType(cc) {
	case "mysql", "mariadb":
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(cc.ConnString, "mysql://"))
		if err != nil {
			return nil, err
		}
		// introspection reads the tables of DATABASE()
		if cfg.DBName == "" {
			return nil, errors.Errorf("mysql: connection string for '%s' names no database", cc.Name)
		}
		cfg.ParseTime = true
		conn, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(conn), nil

	case "sqlite":
		return sql.Open("sqlite", strings.TrimPrefix(cc.ConnString, "sqlite://"))

	default:
		config, err := pgx.ParseConfig(cc.ConnString)
		if err != nil {
			return nil, err
		}
		return sql.Open("pgx", stdlib.RegisterConnConfig(config))
	}
}

// dbType returns the database type of a connection, detecting it from the
// connection string when the type is not set
func dbType(cc core.ConnectionConfig) string {
	if cc.Type != "" {
		return strings.ToLower(cc.Type)
	}
	cs := cc.ConnString
	switch {
	case strings.HasPrefix(cs, "mysql://"):
		return "mysql"
	case strings.HasPrefix(cs, "sqlite://"), strings.HasSuffix(cs, ".db"), cs == ":memory:":
		return "sqlite"
	}
	return "postgres"
}

// initConnections opens every configured connection and registers it with
// the engine. Local connections load their schema file and are seeded with
// fake rows when asked to.
func (s *Service) initConnections(ctx context.Context) error {
	for _, cc := range s.conf.Connections {
		if err := s.initConnection(ctx, cc); err != nil {
			return errors.Wrapf(err, "connection '%s'", cc.Name)
		}
	}
	return nil
}

func (s *Service) initConnection(ctx context.Context, cc core.ConnectionConfig) error {
	dt := dbType(cc)

	if cc.Local {
		b, err := os.ReadFile(s.conf.AbsolutePath(cc.SchemaFile))
		if err != nil {
			return errors.WithStack(err)
		}
		sf, err := core.ParseSchema(b)
		if err != nil {
			return err
		}
		if err := s.eng.ConnectLocal(cc.Name, dt, sf); err != nil {
			return err
		}
		if cc.Seed > 0 {
			if err := s.eng.Seed(ctx, cc.Name, cc.Seed); err != nil {
				return err
			}
		}
		return nil
	}

	db, err := openDB(cc, s.conf.DB, s.log)
	if err != nil {
		return err
	}
	s.dbs[cc.Name] = db

	return s.eng.Connect(ctx, cc.Name, dt, core.NewSQLPool(db), func(ctx context.Context) ([]core.DBTable, error) {
		return core.DiscoverTables(ctx, db, dt)
	})
}

// closeDBs closes the database pools of all SQL connections
func (s *Service) closeDBs() {
	for name, db := range s.dbs {
		if db != nil {
			db.Close() //nolint:errcheck
			s.log.Infof("closed database connection: %s", name)
		}
	}
}
