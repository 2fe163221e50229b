package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/server"
	"github.com/sells-group/telco-assist/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initServe(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if ms, ok := env.Sessions.(*session.MemoryStore); ok {
			go ms.Run(ctx, time.Duration(cfg.Session.SweepIntervalSeconds)*time.Second)
		}

		zap.L().Info("loaded data",
			zap.Int("scraped_pages", env.Pages),
			zap.Int("branches", env.Branches),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(env.Dispatcher, server.Options{
			PagesLoaded:    env.Pages,
			BranchesLoaded: env.Branches,
		})
		return srv.ListenAndServe(ctx, port, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
