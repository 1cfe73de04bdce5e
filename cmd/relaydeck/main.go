package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/alexjbarnes/relaydeck/internal/config"
	"github.com/alexjbarnes/relaydeck/internal/conversation"
	errs "github.com/alexjbarnes/relaydeck/internal/errors"
	"github.com/alexjbarnes/relaydeck/internal/logging"
	"github.com/alexjbarnes/relaydeck/internal/mcpserver"
	"github.com/alexjbarnes/relaydeck/internal/notice"
	"github.com/alexjbarnes/relaydeck/internal/progress"
	"github.com/alexjbarnes/relaydeck/internal/server"
	"github.com/alexjbarnes/relaydeck/internal/state"
	"github.com/alexjbarnes/relaydeck/upstream"
)

var Version = "dev"

const httpTimeout = 30 * time.Second

func main() {
	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "set-session":
		err = setSession(os.Stdin)
	case len(os.Args) > 1 && os.Args[1] == "snapshot":
		err = snapshot(os.Stdout)
	default:
		err = run()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// sessionInput is the YAML document accepted by set-session.
type sessionInput struct {
	Token       string `yaml:"token"`
	Credentials string `yaml:"credentials"`
	SelfID      string `yaml:"self_id"`
	MailboxID   string `yaml:"mailbox_id"`
}

// setSession reads a token and messaging session from r and stores
// them. Empty fields leave the stored value untouched.
func setSession(r io.Reader) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var in sessionInput
	if err := yaml.NewDecoder(r).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading session from stdin: %w", err)
	}

	appState, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	if in.Token != "" {
		if err := appState.SetToken(in.Token); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
	}

	if in.Credentials != "" || in.SelfID != "" || in.MailboxID != "" {
		sess := appState.Session()
		if in.Credentials != "" {
			sess.Credentials = in.Credentials
		}
		if in.SelfID != "" {
			sess.SelfID = in.SelfID
		}
		if in.MailboxID != "" {
			sess.MailboxID = in.MailboxID
		}
		if err := appState.SetSession(sess); err != nil {
			return fmt.Errorf("saving messaging session: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "session saved to %s\n", cfg.StatePath)
	return nil
}

// snapshotOutput is the YAML document printed by snapshot.
type snapshotOutput struct {
	TakenAt time.Time             `yaml:"taken_at"`
	Summary progress.Summary      `yaml:"summary"`
	Jobs    []upstream.Automation `yaml:"jobs"`
}

// snapshot fetches the job list once and prints it as YAML.
func snapshot(w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	appState, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	if cfg.APIToken != "" {
		if err := appState.SetToken(cfg.APIToken); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := upstream.NewClient(cfg.APIBaseURL, &http.Client{Timeout: httpTimeout}, appState)
	jobs, err := client.ListAutomations(ctx)
	if err != nil {
		return fmt.Errorf("listing automations: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()

	return enc.Encode(snapshotOutput{
		TakenAt: time.Now().UTC().Truncate(time.Second),
		Summary: progress.Summarize(jobs),
		Jobs:    jobs,
	})
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("relaydeck starting",
		slog.String("version", Version),
		slog.String("api", cfg.APIBaseURL),
		slog.String("socket", cfg.SocketURL),
	)

	appState, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	if err := seedState(cfg, appState); err != nil {
		return err
	}

	apiKeys, err := cfg.ParseMCPAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing MCP API keys: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	board := notice.NewBoard()
	client := upstream.NewClient(cfg.APIBaseURL, &http.Client{Timeout: httpTimeout}, appState)

	rec := progress.NewReconciler(logging.Component(logger, "reconciler"))
	poller := progress.NewPoller(client, rec, board, progress.PollerConfig{
		Interval:     cfg.JobPollInterval,
		LoadingFloor: cfg.LoadingFloor,
	}, logging.Component(logger, "poller"))

	channel := upstream.NewChannel(upstream.ChannelConfig{
		URL:        cfg.SocketURL,
		Tokens:     appState,
		Attempts:   cfg.ReconnectAttempts,
		BackoffMin: cfg.ReconnectMin,
		BackoffMax: cfg.ReconnectMax,
	}, logging.Component(logger, "channel"))
	defer channel.Disconnect()

	detach := progress.Attach(ctx, channel, rec, cfg.ProgressEvent, cfg.UserID)
	defer detach()

	channel.OnEvent(upstream.EventConnect, func([]byte) {
		board.Info("Live updates connected")
	})
	channel.OnEvent(upstream.EventReconnectFailed, func([]byte) {
		board.Warn("Live updates unavailable, falling back to polling")
	})

	var store *conversation.Store
	if appState.HasSession() {
		store = conversation.NewStore(client, appState, board, conversation.Config{
			PageSize:       cfg.ConversationPageSize,
			ResyncInterval: cfg.MessageResyncInterval,
			RefetchDelay:   cfg.SendRefetchDelay,
		}, logging.Component(logger, "conversations"))
		defer store.Close()
	} else {
		logger.Info("no messaging session stored, conversation tools disabled")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "relaydeck", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, mcpserver.Deps{
		Jobs:          rec,
		Poller:        poller,
		Conversations: store,
		Notices:       board,
		Location:      time.Local,
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := server.NewMux(server.MuxConfig{
		APIKeys:    apiKeys,
		MCPHandler: mcpHandler,
		Channel:    channel,
		Jobs:       poller,
		Notices:    board,
		Logger:     logging.Component(logger, "http"),
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		connectChannel(gctx, channel, logger)
		return nil
	})

	g.Go(func() error {
		err := poller.Run(gctx)
		if errors.Is(err, errs.ErrAuthRequired) {
			logger.Error("job API rejected the token, polling stopped; run set-session and restart")
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logNotices(gctx, board, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("listen", cfg.ListenAddr),
			slog.Bool("mcp", len(apiKeys) > 0),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// seedState copies credentials given through the environment into the
// state store so later runs and set-session share one source.
func seedState(cfg *config.Config, appState *state.State) error {
	if cfg.APIToken != "" {
		if err := appState.SetToken(cfg.APIToken); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
	}

	if cfg.MessagingEnabled() {
		err := appState.SetSession(upstream.Session{
			Credentials: cfg.MessagingCredentials,
			SelfID:      cfg.SelfID,
			MailboxID:   cfg.MailboxID,
		})
		if err != nil {
			return fmt.Errorf("saving messaging session: %w", err)
		}
	}

	return nil
}

// connectChannel opens the push channel. Failure leaves the daemon in
// polling-only mode.
func connectChannel(ctx context.Context, channel *upstream.Channel, logger *slog.Logger) {
	link, err := channel.Connect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("push channel unavailable, continuing with polling only",
				slog.String("error", err.Error()),
			)
		}
		return
	}

	select {
	case <-ctx.Done():
	case <-link.Done():
		if ctx.Err() == nil {
			logger.Warn("push channel closed, continuing with polling only")
		}
	}
}

// logNotices writes every posted notice to the log until ctx is done.
func logNotices(ctx context.Context, board *notice.Board, logger *slog.Logger) {
	notices := board.Watch()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notices:
			attrs := []any{slog.String("notice", n.Text)}
			switch n.Level {
			case notice.Error:
				logger.Error("notice", attrs...)
			case notice.Warn:
				logger.Warn("notice", attrs...)
			default:
				logger.Info("notice", attrs...)
			}
		}
	}
}
