package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/config"
	"github.com/xxxsen/chatctx/internal/pkg/jwt"
)

func main() {
	var (
		configPath string
		chatID     string
		userID     string
	)

	rootCmd := &cobra.Command{
		Use:   "chatctx",
		Short: "conversation context engine",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run chatctx server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "rebuild one chat index from its log, or reconcile every chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runReindex(cmd.Context(), cfg, chatID)
		},
	}
	reindexCmd.Flags().StringVar(&chatID, "chat", "", "chat id to rebuild, empty reconciles all chats")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue a bearer token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			token, err := jwt.GenerateToken(userID, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, token)
			return err
		},
	}
	tokenCmd.Flags().StringVar(&userID, "user", "", "user id carried by the token")

	for _, c := range []*cobra.Command{runCmd, reindexCmd, tokenCmd} {
		c.Flags().StringVar(&configPath, "config", "", "path to config.json")
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}
