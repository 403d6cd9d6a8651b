package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harun/hive/pkg/gateway"
	"github.com/spf13/cobra"
)

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long: `Show whether the Hive gateway is running and list its connected clients.
The address and shared secret come from the config unless --url is given.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "", "gateway base URL (default from config)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(statusURL, "/")
	if base == "" {
		base = "http://" + net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	}

	out := cmd.OutOrStdout()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "Status: unhealthy (%s)\n", resp.Status)
		return nil
	}

	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "Address: %s\n", base)

	if cfg.Gateway.SharedSecret == "" {
		return nil
	}
	clients, err := listClients(client, base, cfg.Gateway.SharedSecret)
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}

	fmt.Fprintf(out, "Clients: %d\n", len(clients))
	for _, c := range clients {
		state := "active"
		if c.Idle {
			state = "idle"
		}
		fmt.Fprintf(out, "  %s  %s  agent=%s messages=%d in_flight=%d uptime=%s\n",
			c.ID, state, c.ActiveAgent, c.Messages, c.InFlight, formatDuration(time.Since(c.ConnectedAt)))
	}
	return nil
}

func listClients(client *http.Client, base, secret string) ([]gateway.ClientInfo, error) {
	body, err := json.Marshal(gateway.RPCRequest{ID: "status", Method: "clients.list", JSONRPC: "2.0"})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, base+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(gateway.SecretHeader, secret)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}

	var rpc struct {
		Result []gateway.ClientInfo `json:"result"`
		Error  *gateway.RPCError    `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, err
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("%s", rpc.Error.Message)
	}
	return rpc.Result, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
