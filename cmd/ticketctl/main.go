// ticketctl administers the local user store directly, without going through
// the HTTP API. It talks to the same PostgreSQL database as the server.
//
//	ticketctl [flags] users
//	ticketctl [flags] stats
//	ticketctl [flags] set-role <user-id> <admin|user>
//	ticketctl [flags] delete <user-id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/event"
	"github.com/evikzub/CVTransformer/internal/repository/postgres"
	"github.com/evikzub/CVTransformer/internal/service"
	"github.com/evikzub/CVTransformer/migrations"
	pkgconfig "github.com/evikzub/CVTransformer/pkg/config"
	"github.com/evikzub/CVTransformer/pkg/database"
	"github.com/evikzub/CVTransformer/pkg/logger"
)

// adminOps is the part of the session service the CLI drives.
type adminOps interface {
	ListUsers(ctx context.Context) ([]*domain.User, error)
	Stats(ctx context.Context) (domain.UserStats, error)
	SetRole(ctx context.Context, id, role string) error
	DeleteUser(ctx context.Context, id string) error
}

// connectFunc opens the user store and returns the operations over it plus
// a function releasing the connection.
type connectFunc func(ctx context.Context, pg database.PostgresConfig, logger *slog.Logger) (adminOps, func(), error)

// env mirrors the server's database settings so both binaries read the same
// variables.
type env struct {
	LogLevel     string `env:"LOG_LEVEL" envDefault:"warn"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"cvtransformer"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"cvtransformer"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"cvtransformer"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, connectPostgres); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, connect connectFunc) error {
	var e env
	if err := pkgconfig.Load(&e); err != nil {
		return err
	}

	pg := database.DefaultPostgresConfig()
	var asJSON bool

	flagSet := pflag.NewFlagSet("ticketctl", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&pg.Host, "host", e.PostgresHost, "PostgreSQL host")
	flagSet.IntVar(&pg.Port, "port", e.PostgresPort, "PostgreSQL port")
	flagSet.StringVar(&pg.User, "user", e.PostgresUser, "PostgreSQL user")
	flagSet.StringVar(&pg.DBName, "db", e.PostgresDB, "PostgreSQL database")
	flagSet.StringVar(&pg.SSLMode, "sslmode", e.PostgresSSL, "PostgreSQL sslmode")
	flagSet.BoolVar(&asJSON, "json", false, "print results as JSON")
	flagSet.Usage = func() {
		fmt.Fprintln(stdout, "usage: ticketctl [flags] users|stats|set-role <id> <role>|delete <id>")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	pg.Password = e.PostgresPass

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if err := checkArgs(cmd, cmdArgs); err != nil {
		return err
	}

	log := logger.NewWithWriter("ticketctl", e.LogLevel, os.Stderr)
	ops, closeFn, err := connect(ctx, pg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	switch cmd {
	case "users":
		users, err := ops.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if asJSON {
			return writeJSON(stdout, users)
		}
		return printUsers(stdout, users)

	case "stats":
		stats, err := ops.Stats(ctx)
		if err != nil {
			return fmt.Errorf("compute stats: %w", err)
		}
		if asJSON {
			return writeJSON(stdout, stats)
		}
		fmt.Fprintf(stdout, "users:       %d\n", stats.TotalUsers)
		fmt.Fprintf(stdout, "admins:      %d\n", stats.TotalAdmins)
		fmt.Fprintf(stdout, "conversions: %d\n", stats.TotalConversions)
		return nil

	case "set-role":
		if err := ops.SetRole(ctx, cmdArgs[0], cmdArgs[1]); err != nil {
			return fmt.Errorf("set role: %w", err)
		}
		fmt.Fprintf(stdout, "user %s is now %s\n", cmdArgs[0], cmdArgs[1])
		return nil

	default: // delete
		if err := ops.DeleteUser(ctx, cmdArgs[0]); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		fmt.Fprintf(stdout, "user %s deleted\n", cmdArgs[0])
		return nil
	}
}

func checkArgs(cmd string, args []string) error {
	want := map[string]int{"users": 0, "stats": 0, "set-role": 2, "delete": 1}
	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

func printUsers(w io.Writer, users []*domain.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREMOTE ID\tUSERNAME\tROLE\tCONVERSIONS\tLAST LOGIN")
	for _, u := range users {
		last := "-"
		if u.LastLogin != nil {
			last = u.LastLogin.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n", u.ID, u.RemoteID, u.Username, u.Role, u.ConversionCount, last)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func connectPostgres(ctx context.Context, pg database.PostgresConfig, log *slog.Logger) (adminOps, func(), error) {
	pool, err := database.NewPostgresPool(ctx, &pg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	// Admin operations never reach the tracker or issue tokens.
	svc := service.NewSessionService(postgres.NewUserRepository(pool), nil, nil, event.Discard{}, log)
	return svc, pool.Close, nil
}
