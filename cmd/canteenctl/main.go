// Command canteenctl imports, exports and summarizes the order collection of
// the configured storage backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appkg "github.com/xenking/canteen-orders/internal/app"
	"github.com/xenking/canteen-orders/internal/domain/order"
	"github.com/xenking/canteen-orders/internal/snapshot"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type env struct {
	lg      *zap.Logger
	storage *appkg.Storage
	store   *order.Store
}

func rootCmd() *cobra.Command {
	var verbose bool

	// open loads configuration and the order collection it points at.
	open := func(ctx context.Context) (*env, func(), error) {
		lg := zap.NewNop()
		if verbose {
			var err error
			if lg, err = zap.NewDevelopment(); err != nil {
				return nil, nil, errors.Wrap(err, "logger")
			}
		}

		cfg, err := appkg.LoadConfig(appkg.SkipFlags())
		if err != nil {
			return nil, nil, err
		}
		storage, err := appkg.OpenStorage(ctx, lg, cfg.Storage)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open storage")
		}
		store := order.NewStore(storage.Slot, order.WithLogger(lg))
		if err := store.Load(ctx); err != nil {
			storage.Close()
			return nil, nil, errors.Wrap(err, "load orders")
		}
		closeFn := func() {
			storage.Close()
			_ = lg.Sync()
		}
		return &env{lg: lg, storage: storage, store: store}, closeFn, nil
	}

	cmd := &cobra.Command{
		Use:   "canteenctl",
		Short: "Manage the canteen order collection",
		Long: `canteenctl operates on the order collection of the storage backend
selected by the CANTEEN_* environment, .env or config.yaml.

Snapshot files hold a JSON array of orders; names ending in .gz are
gzip-compressed.

canteenctl does not coordinate with a running api-server, which rewrites
the whole slot from memory on every order change and on shutdown.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE...",
		Short: "Merge order snapshots into the collection",
		Long: `Merge order snapshots into the collection, skipping ids it already holds.

Run it only while no api-server owns the same slot: the server's next write
overwrites the slot with its in-memory collection and drops the import.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			batches, err := snapshot.Read(ctx, e.lg, args)
			if err != nil {
				return err
			}
			fresh, skipped := snapshot.Fresh(e.store.GetAllOrders(), batches)
			added, err := e.store.Import(ctx, fresh)
			if err != nil {
				return errors.Wrap(err, "import")
			}
			cmd.Printf("imported %d orders, skipped %d duplicates\n", added, skipped)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export FILE",
		Short: "Write the collection to a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			orders := e.store.GetAllOrders()
			if err := snapshot.Write(ctx, args[0], orders); err != nil {
				return err
			}
			cmd.Printf("exported %d orders to %s\n", len(orders), args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Print order counts per dashboard bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			s := e.store.Summary()
			cmd.Printf("pending:   %d\nactive:    %d\ncompleted: %d\nrejected:  %d\n",
				s.Pending, s.Active, s.Completed, s.Rejected)
			if e.storage.Revenue != nil {
				revenue, err := e.storage.Revenue(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("revenue:   %s\n", revenue.StringFixed(2))
			}
			return nil
		},
	})

	return cmd
}
