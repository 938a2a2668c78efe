package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/client/client"
	"github.com/dmitrijs2005/ledgersync/internal/client/config"
	"github.com/dmitrijs2005/ledgersync/internal/client/netmon"
	"github.com/dmitrijs2005/ledgersync/internal/client/store"
	"github.com/dmitrijs2005/ledgersync/internal/client/syncer"
	"github.com/dmitrijs2005/ledgersync/internal/logging"
)

// remoteClient is the server connection the App drives.
// client.GRPCClient satisfies it.
type remoteClient interface {
	client.Remote
	SetAccessToken(token string)
}

type App struct {
	config  *config.Config
	db      *sql.DB
	store   *store.Store
	remote  remoteClient
	monitor *netmon.Monitor
	engine  *syncer.Engine
	policy  syncer.Policy
	log     logging.Logger

	reader      *bufio.Reader
	out         io.Writer
	interactive bool
}

// NewApp opens the local database, connects the gRPC client and builds the
// sync engine. Nothing runs until Run is called.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, logging.ParseLevel(c.LogLevel))

	db, err := client.InitDatabase(ctx, c.DBPath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	remote, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a, err := newApp(c, db, remote, logger)
	if err != nil {
		_ = remote.Close()
		_ = db.Close()
		return nil, err
	}
	a.interactive = isTerminal(int(os.Stdin.Fd()))
	return a, nil
}

func newApp(c *config.Config, db *sql.DB, remote remoteClient, logger logging.Logger) (*App, error) {
	policy, err := syncer.ParsePolicy(c.ConflictPolicy)
	if err != nil {
		return nil, err
	}
	resolver, err := resolverFor(policy)
	if err != nil {
		return nil, err
	}

	st := store.New(db, logger, time.Now)
	mon := netmon.New(remote, c.RemoteCallTimeout, logger)
	eng := syncer.NewEngine(st, remote, mon, syncer.Options{
		Resolver: resolver,
		Backoff: syncer.Backoff{
			Min:         c.BackoffMin,
			Max:         c.BackoffMax,
			Multiplier:  2,
			MaxAttempts: c.MaxAttempts,
		},
		RemoteCallTimeout: c.RemoteCallTimeout,
		Logger:            logger,
		Now:               time.Now,
	})

	return &App{
		config:  c,
		db:      db,
		store:   st,
		remote:  remote,
		monitor: mon,
		engine:  eng,
		policy:  policy,
		log:     logger,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

// resolverFor builds the resolver for p. The merge policy keeps whichever
// side was updated last.
func resolverFor(p syncer.Policy) (syncer.Resolver, error) {
	return syncer.NewResolver(p, syncer.NewerWins)
}

// Run starts the connectivity watcher and auto-sync, then blocks in the
// REPL until the user exits or stdin is closed.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.Close()

	printlnFn("Welcome to ledgersync (type 'help' for commands)")

	unsubscribe := a.engine.AddListener(a.reportProgress)
	defer unsubscribe()

	go a.monitor.Run(ctx, a.config.OnlineCheckInterval)
	if a.config.SyncInterval > 0 {
		a.engine.StartAutoSync(ctx, a.config.SyncInterval)
	}

	runREPL(ctx, a, a.prompt, bufio.NewScanner(a.reader))
}

// Close stops the engine and releases the connection and the database.
func (a *App) Close() {
	a.engine.Close()
	if err := a.remote.Close(); err != nil {
		a.log.Warn(context.Background(), "error closing connection", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn(context.Background(), "error closing database", "error", err)
	}
}

func (a *App) reportProgress(p syncer.SyncProgress) {
	switch p.Status {
	case syncer.StatusCompleted:
		a.log.Info(context.Background(), "sync completed",
			"synced", p.SyncedItems, "failed", p.FailedItems, "skipped", p.SkippedItems,
			"dead", p.DeadItems, "pending", p.PendingChanges)
	case syncer.StatusError:
		a.log.Warn(context.Background(), "sync failed", "error", p.LastError, "pending", p.PendingChanges)
	}
}

// getStatus renders the prompt status, e.g. "(online, 3 pending)".
func (a *App) getStatus(ctx context.Context) string {
	mode := "offline"
	if a.monitor.IsOnline() {
		mode = "online"
	}
	pending, err := a.store.PendingChanges(ctx)
	if err != nil {
		return fmt.Sprintf("(%s)", mode)
	}
	return fmt.Sprintf("(%s, %d pending)", mode, pending)
}

// prompt is empty when stdin is not a terminal, so piped input produces
// clean output.
func (a *App) prompt() string {
	if !a.interactive {
		return ""
	}
	return fmt.Sprintf("ledger %s> ", a.getStatus(context.Background()))
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

// usageError is returned when a command is called with the wrong arguments.
type usageError string

func (u usageError) Error() string {
	return "usage: " + string(u)
}
