package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/marketchat-server/internal/app"
	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/config"
	"github.com/vovakirdan/marketchat-server/internal/log"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "marketchat",
		Short:        "Real-time messaging server for marketplace conversations",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml (created with defaults if absent)")
	root.PersistentFlags().StringVar(&flags.overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().StringVar(&flags.overrides.Addr, "addr", "", "HTTP listen address")

	root.AddCommand(newTokenCmd(flags))
	return root
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	bootLogger := log.New(flags.overrides.LogLevel)
	cfg, path, err := config.Load(bootLogger, flags.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.UpdateFrom(flags.overrides)
	bootLogger.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func serve(ctx context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := log.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		userID string
		name   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT signed with the configured secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			jwtConfig := app.JWTConfig(&cfg)
			jwtConfig.TTL = ttl

			token, err := auth.GenerateToken(jwtConfig, userID, name)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (sub claim)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", app.DefaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
