package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	seismic "github.com/qri-io/seismic-go"
	"github.com/qri-io/seismic-go/internal/config"
	"github.com/qri-io/seismic-go/internal/server"
	"github.com/qri-io/seismic-go/internal/worker"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "seiscube",
	Short: "seiscube - serve slices of fragmented seismic cubes",
	Long: `seiscube serves slices through cubes that are stored as a grid of
equally shaped fragments.

Configuration is read from a YAML file (--config) and can be overridden with
SEISCUBE_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger, err = cfg.Logger(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the HTTP API together with a slice worker
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and a slice worker",
	Long: `Serves the routes

  GET /{guid}                          cube summary
  GET /{guid}/slice                    dimensions
  GET /{guid}/slice/{dim}              line numbers along dim
  GET /{guid}/slice/{dim}/{lineno}     the slice at lineno`,
	Args: cobra.NoArgs,
	RunE: serve,
}

// infoCmd prints the geometry of a cube
var infoCmd = &cobra.Command{
	Use:   "info [guid]",
	Short: "Print the geometry of a stored cube",
	Args:  cobra.ExactArgs(1),
	RunE:  info,
}

// initConfigCmd writes the effective configuration
var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write the current configuration as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Save(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "seiscube.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cfg.Store()
	if err != nil {
		return err
	}

	queue := make(chan []byte, cfg.Worker.Queue)
	sink := make(chan worker.Partial)
	fail := make(chan worker.Failure)
	control := make(chan struct{})

	w := worker.New(store, sink, fail, worker.Options{
		Transfers: cfg.Worker.Transfers,
		TaskSize:  cfg.Worker.TaskSize,
		Logger:    logger.Named("worker"),
	})
	sessions := server.NewSessions(queue, logger.Named("sessions"))
	api := server.New(store, sessions, cfg.GetRequestTimeout(), logger.Named("api"))
	if a := cfg.Server.Auth; a.Enabled() {
		auth, err := server.NewAuthenticator(ctx, server.AuthOptions{
			Issuer:   a.Issuer,
			Audience: a.Audience,
			JWKSURL:  a.JWKSURL,
		}, logger.Named("auth"))
		if err != nil {
			return err
		}
		api.RequireAuth(auth)
		logger.Info("token validation enabled", zap.String("issuer", a.Issuer))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx, queue, control)
	})
	g.Go(func() error {
		sessions.Run(ctx, sink, fail)
		return nil
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("store", store.Type()))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func info(cmd *cobra.Command, args []string) error {
	store, err := cfg.Store()
	if err != nil {
		return err
	}
	cube, err := seismic.Open(cmd.Context(), store, args[0], seismic.WithLogger(logger))
	if err != nil {
		return err
	}

	g := cube.Geometry()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "guid:           %s\n", cube.GUID())
	fmt.Fprintf(out, "dtype:          %s\n", cube.Manifest().SampleType())
	fmt.Fprintf(out, "cube shape:     %s\n", g.CubeShape())
	fmt.Fprintf(out, "fragment shape: %s\n", g.FragmentShape())
	fmt.Fprintf(out, "fragments:      %s (%d)\n", g.GridShape(), len(g.Fragments()))
	fmt.Fprintf(out, "samples:        %d\n", g.GlobalSize())
	for d := 0; d < g.Dimensions(); d++ {
		dim := seismic.Dimension(d)
		lines, err := cube.Manifest().Lines(dim)
		if err != nil {
			return err
		}
		ids, err := g.Slice(dim, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "dim %d:          %d lines [%d..%d], %d fragments per slice\n",
			d, len(lines), lines[0], lines[len(lines)-1], len(ids))
	}
	return nil
}
