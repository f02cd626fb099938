package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"stock_auction/internal/domain"
	"stock_auction/internal/engine"
	"stock_auction/internal/feed"
	"stock_auction/internal/infra"
	"stock_auction/internal/infra/storage"
	"stock_auction/internal/session"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Options are command-line overrides applied on top of the config file.
type Options struct {
	ConfigPath    string
	CataloguePath string
	ListenAddr    string
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Options     Options
	Config      *infra.Config
	Book        *engine.Book
	Engine      *engine.Engine
	Registry    *session.Registry
	Broadcaster *session.Broadcaster
	Server      *session.Server
	Feed        *feed.Server
	Journal     *storage.Journal

	listener     net.Listener
	feedListener net.Listener
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(opts Options) *Bootstrap {
	return &Bootstrap{Options: opts}
}

// Initialize loads configuration and the catalogue, opens the journal and
// binds the listeners. Any failure here aborts startup.
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.Options.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	if b.Options.CataloguePath != "" {
		cfg.Catalogue.Path = b.Options.CataloguePath
	}
	if b.Options.ListenAddr != "" {
		cfg.Server.ListenAddr = b.Options.ListenAddr
	}
	b.Config = cfg

	// 2. Setup Logger, tagged with a per-process run id
	slog.SetDefault(infra.NewLogger(cfg).With(slog.String("run_id", uuid.NewString())))
	slog.Info("🚀 Bootstrapping stock auction...", slog.String("version", cfg.App.Version))

	// 3. Catalogue
	stocks, err := infra.LoadCatalogue(cfg.Catalogue.Path)
	if err != nil {
		return err
	}
	book, err := engine.NewBook(stocks)
	if err != nil {
		return err
	}
	b.Book = book
	slog.Info("✅ Catalogue loaded", slog.String("path", cfg.Catalogue.Path), slog.Int("stocks", book.Len()))

	// 4. Journal (optional)
	var sinks []session.Sink
	if cfg.Journal.Path != "" {
		journal, err := storage.NewJournal(cfg.Journal.Path, cfg.Journal.QueueSize)
		if err != nil {
			return err
		}
		b.Journal = journal
		sinks = append(sinks, journal)
		slog.Info("✅ Journal opened", slog.String("path", cfg.Journal.Path))
	}

	// 5. Engine and fan-out
	b.Registry = session.NewRegistry()
	b.Broadcaster = session.NewBroadcaster(b.Registry, sinks...)
	b.Engine = engine.NewEngine(book, b.Broadcaster, engine.SystemClock{}, engine.Windows{
		Initial:   cfg.Auction.InitialWindow,
		Extension: cfg.Auction.ExtensionWindow,
	})

	// 6. Listeners
	b.Server = session.NewServer(session.ServerConfig{
		IdleTimeout:  cfg.Server.IdleTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		OutboxSize:   cfg.Server.OutboxSize,
		MaxLineBytes: cfg.Server.MaxLineBytes,
	}, b.Engine, b.Registry)

	ln, err := session.Listen(cfg.Server.ListenAddr)
	if err != nil {
		b.closeJournal()
		return err
	}
	b.listener = ln

	if cfg.Feed.ListenAddr != "" {
		fln, err := net.Listen("tcp", cfg.Feed.ListenAddr)
		if err != nil {
			ln.Close()
			b.closeJournal()
			return domain.NewFatalNetworkError("feed listen", err)
		}
		b.feedListener = fln
		b.Feed = feed.NewServer(feed.Config{
			WriteTimeout: cfg.Server.WriteTimeout,
			OutboxSize:   cfg.Server.OutboxSize,
		}, book, b.Registry)
	}

	return nil
}

// Addr returns the bound auction listener address.
func (b *Bootstrap) Addr() net.Addr {
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// FeedAddr returns the bound feed address, or nil when the feed is disabled.
func (b *Bootstrap) FeedAddr() net.Addr {
	if b.feedListener == nil {
		return nil
	}
	return b.feedListener.Addr()
}

// Run opens the auctions and serves until ctx is done or a listener fails.
// Shutdown order: listeners, close timers, broadcast drain, journal.
func (b *Bootstrap) Run(ctx context.Context) error {
	// Broadcaster and journal outlive the listeners so queued notices drain.
	pipeCtx, stopPipe := context.WithCancel(context.Background())
	defer stopPipe()

	journalDone := make(chan error, 1)
	if b.Journal != nil {
		go func() { journalDone <- b.Journal.Run(pipeCtx) }()
	} else {
		journalDone <- nil
	}
	go b.Broadcaster.Run(pipeCtx)

	b.Engine.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := b.Server.Serve(gctx, b.listener)
		if errors.Is(err, domain.ErrServerClosed) {
			return nil
		}
		return err
	})
	if b.Feed != nil {
		g.Go(func() error {
			return b.Feed.Serve(b.feedListener)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return b.Feed.Shutdown(sctx)
		})
	}

	slog.Info("✨ Auction server fully operational", slog.String("addr", b.listener.Addr().String()))

	// A failing listener cancels gctx and takes the others down.
	err := g.Wait()

	slog.Info("👋 Shutting down gracefully...")
	b.Server.Shutdown()
	b.Engine.Stop()
	b.Broadcaster.Close()
	<-b.Broadcaster.Done()

	stopPipe()
	if jerr := <-journalDone; jerr != nil && err == nil {
		err = fmt.Errorf("journal: %w", jerr)
	}
	b.closeJournal()

	return err
}

func (b *Bootstrap) closeJournal() {
	if b.Journal == nil {
		return
	}
	if err := b.Journal.Close(); err != nil {
		slog.Error("Failed to close journal", slog.Any("error", err))
	}
}
