package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/internal/stores"
	"github.com/nexustalent/sessionauth/internal/stores/fallback"
	"github.com/nexustalent/sessionauth/password"
	"github.com/nexustalent/sessionauth/session"
)

// openDB and migrate are replaced in tests.
var (
	openDB  = stores.OpenPostgres
	migrate = fallback.Migrate
)

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("authctl "+name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return errUsage
	}
	return nil
}

// required fails with errUsage on the first empty flag. names are the flag
// names, without the dash.
func required(fs *flag.FlagSet, names ...string) error {
	for _, name := range names {
		if strings.TrimSpace(fs.Lookup(name).Value.String()) == "" {
			fmt.Fprintf(fs.Output(), "-%s is required\n", name)
			fs.Usage()
			return errUsage
		}
	}
	return nil
}

func newVerifier(cost int) (*password.Verifier, error) {
	return password.NewDefaultVerifier(cost, password.DefaultArgon2Config())
}

func runHash(_ context.Context, c *cli, args []string) error {
	fs := c.flags("hash")
	scheme := fs.String("scheme", "bcrypt", "bcrypt or argon2id")
	cost := fs.Int("cost", password.DefaultBcryptCost, "bcrypt cost")
	if err := parse(fs, args); err != nil {
		return err
	}

	v, err := newVerifier(*cost)
	if err != nil {
		return err
	}
	pw, err := c.password()
	if err != nil {
		return err
	}
	h, err := v.HashWith(*scheme, pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, h)
	return nil
}

func runSeedUser(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("seed-user")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	role := fs.String("role", "student", "role string")
	id := fs.String("id", "", "user id (generated when empty)")
	dsn := fs.String("dsn", "", "fallback store DSN; prints SQL when empty")
	cost := fs.Int("cost", password.DefaultBcryptCost, "bcrypt cost")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "email"); err != nil {
		return err
	}

	v, err := newVerifier(*cost)
	if err != nil {
		return err
	}
	pw, err := c.password()
	if err != nil {
		return err
	}
	hash, err := v.Hash(pw)
	if err != nil {
		return err
	}

	rec := &sessionauth.UserRecord{
		ID:           *id,
		Email:        strings.ToLower(strings.TrimSpace(*email)),
		Name:         *name,
		PasswordHash: hash,
		Role:         *role,
	}

	if *dsn == "" {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		fmt.Fprintln(c.stdout, insertSQL(rec))
		return nil
	}

	db, err := openDB(ctx, *dsn, stores.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	newID, err := fallback.NewRepository(db).Insert(ctx, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "created user %s (%s)\n", newID, rec.Email)
	return nil
}

// insertSQL renders rec as a statement for manual application.
func insertSQL(rec *sessionauth.UserRecord) string {
	return fmt.Sprintf(
		"INSERT INTO public.users (id, email, name, password_hash, role)\nVALUES (%s, %s, %s, %s, %s);",
		quote(rec.ID), quote(rec.Email), quote(rec.Name), quote(rec.PasswordHash), quote(rec.Role),
	)
}

func quote(s string) string {
	if s == "" {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func runMigrate(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("migrate")
	dsn := fs.String("dsn", "", "fallback store DSN")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "dsn"); err != nil {
		return err
	}

	db, err := openDB(ctx, *dsn, stores.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "fallback store schema is up to date")
	return nil
}

func runLegacySession(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("legacy-session")
	addr := fs.String("redis", "", "redis address")
	redisPassword := fs.String("redis-password", "", "redis password")
	redisDB := fs.Int("redis-db", 0, "redis database")
	prefix := fs.String("prefix", "ls", "session key prefix")
	userID := fs.String("user-id", "", "owning user id")
	email := fs.String("email", "", "owning user email")
	role := fs.String("role", "", "role string")
	ttl := fs.Duration("ttl", 24*time.Hour, "session lifetime")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "redis", "user-id", "email"); err != nil {
		return err
	}
	if *ttl <= 0 {
		return errors.New("-ttl must be positive")
	}

	client := redis.NewClient(&redis.Options{Addr: *addr, Password: *redisPassword, DB: *redisDB})
	defer client.Close()

	id, err := writeLegacySession(ctx, session.NewStore(client, *prefix), *userID, *email, *role, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s=%s\n", session.DefaultCookieName, id)
	return nil
}

func writeLegacySession(ctx context.Context, store *session.Store, userID, email, role string, ttl time.Duration) (string, error) {
	id, err := session.NewID()
	if err != nil {
		return "", err
	}
	now := time.Now()
	err = store.Save(ctx, &session.Session{
		ID:        id,
		UserID:    userID,
		Email:     strings.ToLower(email),
		Role:      role,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
