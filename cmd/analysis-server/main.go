package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/chess-position-analyzer/internal/adapter/chesspresenter"
	"github.com/park285/chess-position-analyzer/internal/chess"
	"github.com/park285/chess-position-analyzer/internal/chess/uci"
	"github.com/park285/chess-position-analyzer/internal/chessbuilder"
	appcfg "github.com/park285/chess-position-analyzer/internal/config"
	"github.com/park285/chess-position-analyzer/internal/msgcat"
	"github.com/park285/chess-position-analyzer/internal/obslog"
)

const shutdownTimeout = 10 * time.Second

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := appcfg.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cmd := newRootCommand(cfg, stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(cfg *appcfg.AppConfig, stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "analysis-server",
		Short:         "Chess position analysis backed by a UCI engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newServeCommand(cfg),
		newAnalyzeCommand(cfg, stdout),
		newCheckCommand(cfg, stdout),
	)
	return root
}

// initLogger installs the configured logger. Commands that print results
// on stdout keep console logs on stderr.
func initLogger(cfg appcfg.AppConfig, console io.Writer) (*zap.Logger, error) {
	lc := cfg.Log
	lc.Console = console
	logger, err := obslog.Init(lc)
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	return logger, nil
}

func newServeCommand(cfg *appcfg.AppConfig) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP analysis API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := initLogger(*cfg, os.Stdout)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if addr == "" {
				addr = cfg.Addr()
			}
			return serve(cmd.Context(), cfg, addr, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *appcfg.AppConfig, addr string, logger *zap.Logger) error {
	deps, err := chessbuilder.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("shutdown: close analyzer", zap.Error(err))
		}
	}()

	srv := deps.Server(cfg, logger)
	logger.Info("analysis server starting",
		zap.String("addr", addr),
		zap.String("engine", cfg.StockfishPath),
		zap.Bool("reuse", cfg.EngineReuse),
		zap.Bool("cache", deps.Redis != nil))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("analysis server shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newAnalyzeCommand(cfg *appcfg.AppConfig, stdout io.Writer) *cobra.Command {
	var (
		fen    string
		moves  string
		timeMS int
		depth  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse one position and print the best move",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := initLogger(*cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			req := chess.Request{
				Position:   strings.TrimSpace(fen),
				Moves:      chess.NormalizeMoves(strings.Fields(moves)),
				TimeBudget: time.Duration(timeMS) * time.Millisecond,
				Depth:      depth,
			}
			if err := chess.ValidateFEN(req.Position); err != nil {
				return err
			}
			if err := chess.ValidateMoves(req.Position, req.Moves); err != nil {
				return err
			}

			deps, err := chessbuilder.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			res, err := deps.Service.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			resp := deps.Formatter.ToAnalyzeResponse(req, res)
			if asJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			_, err = fmt.Fprintln(stdout, deps.Formatter.Summary(resp))
			return err
		},
	}
	cmd.Flags().StringVar(&fen, "fen", uci.StartPosition, "position as FEN, or \"startpos\"")
	cmd.Flags().StringVar(&moves, "moves", "", "space separated UCI moves played from the position")
	cmd.Flags().IntVar(&timeMS, "time", 0, "time budget in milliseconds (0 uses the configured default)")
	cmd.Flags().IntVar(&depth, "depth", 0, "optional search depth limit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the API response body instead of text")
	return cmd
}

func newCheckCommand(cfg *appcfg.AppConfig, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Start the engine, complete the handshake and stop it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := initLogger(*cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			start := time.Now()
			session, err := uci.NewSession(cmd.Context(), chessbuilder.SessionConfig(cfg, logger))
			if err != nil {
				return err
			}
			elapsed := time.Since(start).Round(time.Millisecond)
			name, pid := session.Name(), session.PID()
			if err := session.Close(); err != nil {
				return fmt.Errorf("stop engine: %w", err)
			}

			cat, err := msgcat.New(cfg.MessagesDir)
			if err != nil {
				return fmt.Errorf("load messages: %w", err)
			}
			f := chesspresenter.NewFormatter(cat)
			_, err = fmt.Fprintln(stdout, f.Check(name, pid, elapsed.String()))
			return err
		},
	}
}
