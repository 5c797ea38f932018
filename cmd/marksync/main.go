package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/notebridge/marksync/pkg/agent"
	"github.com/notebridge/marksync/pkg/api"
	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/client"
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// DefaultListenAddr is where the daemon serves the control API.
const DefaultListenAddr = "127.0.0.1:27124"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marksync",
	Short: "Marksync - bookmark to note-bridge sync agent",
	Long: `Marksync bidirectionally synchronizes a managed subtree of local
bookmarks with a note-management bridge: local edits are captured,
coalesced, and delivered as action envelopes over a persistent
WebSocket; inbound actions from the bridge are applied locally with
echo suppression.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Marksync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("addr", DefaultListenAddr, "Daemon control API address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(bookmarkCmd)
}

func apiClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("addr")
	return client.NewClient(addr)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync agent and control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		listen, _ := cmd.Flags().GetString("listen")
		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")

		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to resolve home directory: %v", err)
			}
			dataDir = filepath.Join(home, ".marksync")
		}

		kv, err := storage.NewBoltKV(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open state storage: %v", err)
		}
		defer kv.Close()

		broker := bookmarks.NewBroker()
		broker.Start()
		defer broker.Stop()

		tree, err := bookmarks.NewBoltTree(dataDir, broker)
		if err != nil {
			return fmt.Errorf("failed to open bookmark tree: %v", err)
		}
		defer tree.Close()

		agt, err := agent.New(state.NewStore(kv), tree)
		if err != nil {
			return fmt.Errorf("failed to build agent: %v", err)
		}
		agt.Start()

		server := api.NewServer(agt)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(listen); err != nil {
				errCh <- fmt.Errorf("control API error: %v", err)
			}
		}()

		fmt.Printf("Marksync daemon running (api %s, data %s). Press Ctrl+C to stop.\n", listen, dataDir)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case err := <-errCh:
			agt.Stop()
			return err
		}

		fmt.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Stop(ctx)
		agt.Stop()
		return nil
	},
}

func init() {
	daemonCmd.Flags().String("data-dir", "", "Data directory (default ~/.marksync)")
	daemonCmd.Flags().String("listen", DefaultListenAddr, "Control API listen address")
	daemonCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	daemonCmd.Flags().Bool("log-json", false, "Log JSON instead of console output")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := apiClient(cmd).Status()
		if err != nil {
			return err
		}

		fmt.Printf("Session:     %s\n", st.Session.Status)
		if st.Session.ActiveClientID != "" {
			fmt.Printf("Client:      %s\n", st.Session.ActiveClientID)
		}
		if st.Session.LastConnectedAt != "" {
			fmt.Printf("Connected:   %s\n", st.Session.LastConnectedAt)
		}
		if st.Session.LastError != "" {
			fmt.Printf("Last error:  %s\n", st.Session.LastError)
		}
		fmt.Printf("Reconnects:  %d\n", st.Session.ReconnectAttempt)
		fmt.Printf("Queue depth: %d\n", st.QueueDepth)
		fmt.Printf("Auto-sync:   %v\n", st.AutoSync)
		if st.ImportActive {
			fmt.Println("Import in progress")
		}
		if st.SuppressActive {
			fmt.Println("Echo suppression active")
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a manual sync round",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).Sync(); err != nil {
			return err
		}
		fmt.Println("✓ Sync triggered")
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the debug timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		if clear, _ := cmd.Flags().GetBool("clear"); clear {
			if err := c.ClearEvents(); err != nil {
				return err
			}
			fmt.Println("✓ Timeline cleared")
			return nil
		}

		events, err := c.Events()
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events recorded")
			return nil
		}
		for _, ev := range events {
			fmt.Printf("%s  %-5s  %-22s %s\n", ev.At, ev.Level, ev.Event, ev.Summary)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Bool("clear", false, "Clear the timeline instead of printing it")
}
