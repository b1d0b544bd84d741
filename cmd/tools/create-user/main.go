// Command create-user registers an account in the configured datastore.
//
// Usage:
//
//	create-user -username alice -name "Alice" -password '...' [-- server flags]
//
// Storage settings come from the same flags, VIVPRO_SONGS_* variables and
// TOML file as the server. Arguments after "--" are passed to that loader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"vivpro-songs/internal/accounts"
	"vivpro-songs/internal/api"
	"vivpro-songs/internal/apperr"
	"vivpro-songs/internal/auth"
	"vivpro-songs/internal/backend"
	"vivpro-songs/internal/config"
	"vivpro-songs/internal/models"
	"vivpro-songs/internal/observability/logging"
)

// passwordEnv is read when -password is omitted, keeping the secret out of
// the process list.
const passwordEnv = config.EnvPrefix + "USER_PASSWORD"

func main() {
	if err := run(context.Background(), os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fatalf("create-user: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

type userFlags struct {
	username string
	name     string
	password string
}

func parseFlags(args []string, lookup config.LookupEnv, stderr io.Writer) (userFlags, []string, error) {
	var f userFlags
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.username, "username", "", "username for the new account")
	fs.StringVar(&f.name, "name", "", "display name for the new account")
	fs.StringVar(&f.password, "password", "", "password for the new account (or set "+passwordEnv+")")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	if f.password == "" {
		if v, ok := lookup(passwordEnv); ok {
			f.password = v
		}
	}
	f.username = strings.TrimSpace(f.username)
	if f.username == "" {
		return f, nil, errors.New("-username is required")
	}
	f.name = strings.TrimSpace(f.name)
	if f.name == "" {
		f.name = f.username
	}
	return f, fs.Args(), nil
}

func run(ctx context.Context, args []string, lookup config.LookupEnv, stdout, stderr io.Writer) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	flags, rest, err := parseFlags(args, lookup, stderr)
	if err != nil {
		return err
	}
	if err := api.ValidateRegistration(flags.username, flags.name, flags.password); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	cfg, err := config.Load(rest, lookup, stderr)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: stderr})

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("close datastore", "error", err)
		}
	}()

	user, err := createUser(ctx, b, cfg, flags)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "User %s (%s) created with id %s.\n", user.Username, user.Name, user.ID)
	return nil
}

func createUser(ctx context.Context, b *backend.Backend, cfg config.Config, flags userFlags) (models.User, error) {
	sessions := auth.NewSessionManager(auth.DefaultSessionTTL, auth.WithStore(b.Sessions))
	svc := accounts.NewService(b.Repo, sessions, auth.NewPasswordHasher(cfg.Security.BcryptCost))
	user, err := svc.Register(ctx, accounts.RegisterParams{
		Username: flags.username,
		Name:     flags.name,
		Password: flags.password,
	})
	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) {
		return models.User{}, fmt.Errorf("username %q is already registered", flags.username)
	}
	return user, err
}
