package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipdeck/internal/actions"
	"go.klb.dev/clipdeck/internal/capture"
	"go.klb.dev/clipdeck/internal/clip"
	"go.klb.dev/clipdeck/internal/control"
	"go.klb.dev/clipdeck/internal/decode"
	"go.klb.dev/clipdeck/internal/history"
	"go.klb.dev/clipdeck/internal/imaging"
	"go.klb.dev/clipdeck/internal/ipc"
	"go.klb.dev/clipdeck/internal/pinstore"
	"go.klb.dev/clipdeck/internal/tlsconf"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the clipboard history daemon",
		Long: `Starts capturing the system clipboard into an in-memory history.
Pinned entries are restored from and saved to a SQLite database. The control
socket serves gRPC and an HTTP/JSON mirror for the other sub-commands.

Config file search order:
  /etc/clipdeck/clipdeck.toml
  $HOME/.config/clipdeck/clipdeck.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPDECK_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runDaemon(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.Duration("poll-interval", clip.DefaultPollInterval, "how often to sample the system clipboard")
	f.Duration("idle", capture.DefaultIdle, "longest wait for a clipboard change per capture iteration")
	f.Bool("no-clipboard", false, "run without the system clipboard (headless)")
	f.String("db", defaultDBPath(), "pin database path (empty = pins are not persisted)")
	f.String("passphrase", "", "seal pinned payloads at rest with this passphrase")
	f.Int("png-compression", 0, "PNG compression for decoded bitmaps: 0 default, -1 none, -2 fastest, -3 best")
	f.String("source", defaultSource(), "name reported by status")
	f.String("listen", "", "also serve the control API over TLS on this TCP address (keyed by --token)")
	addControlFlags(cmd)
	addLoggingFlags(cmd)

	return cmd
}

func runDaemon(parent context.Context, v *viper.Viper) error {
	setupLogging(v)
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("clipdeck starting", "version", Version, "db", v.GetString("db"))

	var src clip.Source
	if v.GetBool("no-clipboard") {
		src = clip.Headless()
	} else {
		src = clip.New(v.GetDuration("poll-interval"))
	}
	defer src.Close()
	slog.Info("clipboard backend", "name", src.Name())

	var (
		persist history.Persistence
		counter control.Counter
		pins    *pinstore.Store
	)
	if path := v.GetString("db"); path != "" {
		var err error
		pins, err = pinstore.Open(path, pinstore.Options{Passphrase: v.GetString("passphrase")})
		if err != nil {
			return err
		}
		defer pins.Close()
		persist, counter = pins, pins
	}

	bus := history.NewBus()
	store := history.NewStore(bus)
	store.SetActions(actions.Default(src, store, persist))
	coord := history.NewCoordinator(store, persist, bus)

	enc := imaging.PNGEncoder{Compression: png.CompressionLevel(v.GetInt("png-compression"))}
	capturer := &capture.Capturer{
		Source:  src,
		Decoder: decode.Default(enc),
		Store:   store,
		Idle:    v.GetDuration("idle"),
	}
	if pins != nil {
		if _, err := capturer.Restore(ctx, pins); err != nil {
			return err
		}
	}

	var loop capture.Loop
	svc := control.NewService(control.Config{
		Store:       store,
		Coordinator: coord,
		Bus:         bus,
		Pins:        counter,
		Capture:     &loop,
		Source:      v.GetString("source"),
		Version:     Version,
		Token:       v.GetString("token"),
	})

	socket := v.GetString("socket")
	ln, err := ipc.Listen(socket)
	if err != nil {
		return fmt.Errorf("control socket %s: %w", socket, err)
	}
	listeners := []net.Listener{ln}
	slog.Info("control socket listening", "path", socket)

	if addr := v.GetString("listen"); addr != "" {
		tl, err := tlsconf.Listen(addr, v.GetString("token"))
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("control listener %s: %w", addr, err)
		}
		if v.GetString("token") == "" {
			slog.Warn("TLS control listener has no token; any client with the default key can connect", "addr", tl.Addr())
		}
		listeners = append(listeners, tl)
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	served := make(chan error, len(listeners))
	for _, l := range listeners {
		go func() { served <- control.Serve(serveCtx, l, svc) }()
	}

	loopErr := loop.Start(ctx, capturer.Step)
	stopServe()
	errs := []error{loopErr}
	for range listeners {
		errs = append(errs, <-served)
	}

	slog.Info("clipdeck stopped", "entries", store.Len())
	return errors.Join(errs...)
}
