package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/matinee/internal/assistant"
	"github.com/zulandar/matinee/internal/config"
	"gorm.io/gorm"
)

// retentionSchedule runs the audit purge nightly at 04:00.
const retentionSchedule = "0 4 * * *"

// Daemon is the main bot process. It owns the single platform connection,
// builds the dispatch pipeline, and runs the background sweep and retention
// jobs until its context is cancelled.
type Daemon struct {
	db        *gorm.DB
	cfg       *config.Config
	adapter   Adapter
	identity  IdentityVerifier
	media     MediaBackend
	library   LibraryResolver
	completer assistant.Completer
	out       io.Writer

	mu      sync.Mutex
	running bool
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	DB        *gorm.DB
	Config    *config.Config
	Adapter   Adapter
	Identity  IdentityVerifier
	Media     MediaBackend
	Library   LibraryResolver // optional
	Completer assistant.Completer
	Out       io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bot: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Identity == nil {
		return nil, fmt.Errorf("bot: identity verifier is required")
	}
	if opts.Media == nil {
		return nil, fmt.Errorf("bot: media backend is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("bot: completer is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		db:        opts.DB,
		cfg:       opts.Config,
		adapter:   opts.Adapter,
		identity:  opts.Identity,
		media:     opts.Media,
		library:   opts.Library,
		completer: opts.Completer,
		out:       out,
	}, nil
}

// Run starts the bot: connects the adapter, builds all services, starts the
// background jobs, and pumps inbound messages until the context is
// cancelled. Calling Run on an already-running daemon warns and no-ops.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		log.Printf("bot: daemon already running; ignoring second Run call")
		return nil
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	fmt.Fprintf(d.out, "Matinee connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	selections := NewSelectionTable()

	marks, err := NewMarkService(MarkServiceOpts{
		DB:           d.db,
		Adapter:      d.adapter,
		Media:        d.media,
		Library:      d.library,
		Selections:   selections,
		AdminContact: d.cfg.Discord.AdminContact,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build mark service: %w", err)
	}

	chat, err := NewChatService(ChatServiceOpts{
		DB:        d.db,
		Completer: d.completer,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build chat service: %w", err)
	}

	router, err := NewRouter(RouterOpts{
		Identity:       d.identity,
		Marks:          marks,
		Chat:           chat,
		Auditor:        NewAuditor(d.db),
		Adapter:        d.adapter,
		SupportChannel: d.cfg.Discord.SupportChannel,
		AllowedThreads: d.cfg.Discord.AllowedThreads,
		Out:            d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	jobs := d.startJobs(selections)
	defer jobs.Stop()

	fmt.Fprintf(d.out, "Matinee online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Matinee shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				log.Printf("bot: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Matinee stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Matinee inbound channel closed\n")
				return nil
			}
			// Each message is handled on its own goroutine; the router
			// tolerates interleaving, and in-flight handlers finish
			// naturally on shutdown.
			go router.Handle(ctx, msg)
		}
	}
}

// startJobs schedules the selection sweep and the nightly audit purge.
func (d *Daemon) startJobs(selections *SelectionTable) *cron.Cron {
	c := cron.New()

	c.Schedule(cron.Every(SweepInterval), cron.FuncJob(func() {
		if purged := selections.Sweep(); purged > 0 {
			fmt.Fprintf(d.out, "bot: swept %d expired selections\n", purged)
		}
	}))

	auditor := NewAuditor(d.db)
	retention := time.Duration(d.cfg.Audit.RetentionDays) * 24 * time.Hour
	if _, err := c.AddFunc(retentionSchedule, func() {
		purged, err := auditor.PurgeOlderThan(time.Now().Add(-retention))
		if err != nil {
			log.Printf("bot: audit retention: %v", err)
			return
		}
		if purged > 0 {
			fmt.Fprintf(d.out, "bot: purged %d audit records\n", purged)
		}
	}); err != nil {
		log.Printf("bot: schedule audit retention: %v", err)
	}

	c.Start()
	return c
}
