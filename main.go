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
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"content_ideas_assistant/config"
	"content_ideas_assistant/console"
	"content_ideas_assistant/delivery"
	"content_ideas_assistant/render"
	"content_ideas_assistant/server"
)

var (
	configPath string
	envFile    string
	verbose    bool

	addr        string
	serveTyping bool
	userName    string
	style       string
	chatTyping  bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "content-ideas",
	Short: "Conversational assistant that turns a niche into content ideas and ready posts",
	Long: `content-ideas walks a user through three questions (niche, goal, format),
proposes five content ideas and turns the chosen one into a finished post,
optionally with a generated illustration.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath, envFile)
		if err != nil {
			return err
		}

		zc := zap.NewProductionConfig()
		level := cfg.LogLevel()
		// The REPL shares the terminal with the logs.
		if cmd.Name() == "chat" && level < zapcore.WarnLevel {
			level = zapcore.WarnLevel
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		zc.Level = zap.NewAtomicLevelAt(level)
		logger, err = zc.Build()
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

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dialogue over HTTP and WebSocket",
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in this terminal",
	Long: `Starts an interactive session. Type answers as plain text, press buttons
with !<action> (for example !idea_2), restart with /start and leave with /quit.
Generated images are written to the images folder.`,
	RunE: runChat,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and test the model endpoint",
	RunE:  runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before environment overrides")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveTyping, "typing", true, "make WebSocket clients wait out typing delays")

	chatCmd.Flags().StringVar(&userName, "name", "", "name to greet (defaults to $USER)")
	chatCmd.Flags().StringVar(&style, "style", "dark", "glamour style: dark, light, notty")
	chatCmd.Flags().BoolVar(&chatTyping, "typing", false, "pause before each reply like a typing chat partner")

	rootCmd.AddCommand(serveCmd, chatCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.controller, server.Options{
		RequestTimeout: cfg.RequestTimeout(),
		Delivery:       deliveryOptions(cfg),
		Typing:         serveTyping,
	}, logger)
	if err != nil {
		return err
	}
	listen := cfg.Server.Addr
	if addr != "" {
		listen = addr
	}
	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", listen))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		a.sessions.Run(gctx, cfg.SweepInterval(), cfg.SessionTTL(), logger)
		return nil
	})
	return g.Wait()
}

func runChat(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	term, err := render.NewTerminal(style, 0)
	if err != nil {
		return err
	}
	images, err := a.imageFolder()
	if err != nil {
		return err
	}
	name := userName
	if name == "" {
		name = os.Getenv("USER")
	}
	c := console.New(a.controller, os.Stdin, os.Stdout, console.Options{
		User:     consoleUser(name),
		Terminal: term,
		Images:   images,
		Typing:   chatTyping,
		Delivery: deliveryOptions(cfg),
	}, logger)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	fmt.Println(cfg.Summary())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := a.agent.Check(ctx); err != nil {
		return err
	}
	fmt.Println("connection OK")
	return nil
}

func deliveryOptions(c *config.Config) delivery.Options {
	return delivery.Options{
		ImageAttempts: c.Images.DeliveryAttempts,
		ImagePause:    c.DeliveryPause(),
	}
}
