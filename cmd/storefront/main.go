// Command storefront is the storefront client: a CLI for one local user and
// a backend-for-frontend server for browsers.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmynk/storefront/internal/api"
	"github.com/mmynk/storefront/internal/checkout"
	"github.com/mmynk/storefront/internal/config"
	"github.com/mmynk/storefront/internal/notify"
	"github.com/mmynk/storefront/internal/storage/sqlite"
	"github.com/mmynk/storefront/internal/storefront"
	"github.com/mmynk/storefront/pkg/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront client: browse products, manage the cart, check out",
	Long: `storefront talks to the remote storefront API on behalf of one user.

Commands other than serve act on the session stored locally by "login".
"serve" exposes the same operations to browsers over Connect RPC.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logging.SetupWithLevel(logging.ParseLevel(cfg.Log.Level))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(productsCmd, addCmd, cartCmd, qtyCmd, removeCmd, checkoutCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func checkoutOptions(c config.Config) checkout.Options {
	return checkout.Options{
		ReturnURL:   c.Checkout.ReturnURL,
		CancelURL:   c.Checkout.CancelURL,
		Description: c.Checkout.Description,
	}
}

// local is the session of the CLI user, backed by the local SQLite store.
type local struct {
	*storefront.Storefront
	store   *sqlite.SQLiteStore
	notices *notify.Queue
}

func openStore() (*sqlite.SQLiteStore, error) {
	store, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local storage: %w", err)
	}
	return store, nil
}

func openLocal(ctx context.Context) (*local, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	notices := notify.NewQueue(cfg.Server.NoticeBuffer)
	sf, err := storefront.Open(ctx, storefront.Deps{
		API:      api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, nil),
		Store:    store,
		Notifier: notices,
		Checkout: checkoutOptions(cfg),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &local{Storefront: sf, store: store, notices: notices}, nil
}

// close prints pending notices to w and releases the store.
func (l *local) close(w io.Writer) {
	for _, n := range l.notices.Drain() {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	}
	l.Storefront.Close()
	l.store.Close()
}
