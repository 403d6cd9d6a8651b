package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/hive/pkg/gateway"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host  string
	port  int
	tick  time.Duration
	watch bool
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve agent runs over WebSocket and HTTP",
	Long: `Start the gateway in the foreground. Clients authenticate with the shared
secret, then call agents.list, chat.send, run, session.reset and clients.list.
Stop with Ctrl+C.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.host, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVar(&serveOpts.port, "port", 0, "listen port, 0 picks a free port (default from config)")
	serveCmd.Flags().DurationVar(&serveOpts.tick, "tick", 0, "heartbeat interval, negative disables (default 30s)")
	serveCmd.Flags().BoolVar(&serveOpts.watch, "watch", true, "reload the catalog file when it changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	gw := rt.cfg.Gateway
	if cmd.Flags().Changed("host") {
		gw.Host = serveOpts.host
	}
	if cmd.Flags().Changed("port") {
		gw.Port = serveOpts.port
	}

	out := cmd.OutOrStdout()
	if gw.SharedSecret == "" {
		gw.SharedSecret = gonanoid.Must(32)
		rt.logger.Warn().Msg("No gateway shared secret configured, generated one for this process")
		fmt.Fprintf(out, "Shared secret: %s\n", gw.SharedSecret)
	}

	var agents gateway.AgentSource = rt.catalog
	if serveOpts.watch {
		if agents, err = rt.watchCatalog(); err != nil {
			return err
		}
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:              gw.Host,
		Port:              gw.Port,
		SharedSecret:      gw.SharedSecret,
		TickInterval:      serveOpts.tick,
		Runner:            rt.runner,
		Agents:            agents,
		RunOptions:        rt.runOptions(),
		RequestsPerMinute: gw.RequestsPerMinute,
		Burst:             gw.Burst,
		Logger:            rt.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	if err := server.Start(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Gateway listening on %s (catalog %s, entry %s)\n", server.Addr(), rt.catalog.Name(), agents.Entry().Name)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Gateway stopped")
	return nil
}
