package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kkkkikiki/blooddrive/internal/config"
	"github.com/kkkkikiki/blooddrive/internal/database"
	"github.com/kkkkikiki/blooddrive/internal/events"
	"github.com/kkkkikiki/blooddrive/internal/logger"
	"github.com/kkkkikiki/blooddrive/internal/repository"
	"github.com/kkkkikiki/blooddrive/internal/service"
)

// App holds the dependencies shared by every command
type App struct {
	cfg    *config.Config
	db     *database.DB
	logger *zap.Logger
	ctx    context.Context
}

var app *App

func main() {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Blood drive operations CLI",
		Long:  `Operational commands for the blood drive service: schema migration, seat reconciliation and event stream inspection.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app == nil {
				return
			}
			if app.db != nil {
				app.db.Close()
			}
			app.logger.Sync()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(eventsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// initApp sets up config, logger and database connections
func initApp(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.App.LogLevel, "console", "blooddrive-admin")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	db, err := database.NewDB(ctx, cfg, log)
	if err != nil {
		return err
	}

	app = &App{cfg: cfg, db: db, logger: log, ctx: ctx}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return database.Migrate(app.ctx, app.db.Postgres, app.logger)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <campaign-id>",
		Short: "Compare a campaign's seat counter with the enrollments holding a seat",
		Long: `Reports the seat counter, the number of PENDING and CONFIRMED enrollments and their difference.
The counter is never rewritten. The command exits non-zero when they disagree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaigns := service.NewCampaignService(
				repository.NewPostgresStore(app.db.Postgres),
				service.WithLogger(app.logger),
			)

			report, err := campaigns.ReconcileSeats(app.ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Campaign:     %s\n", report.CampaignID)
			fmt.Printf("Max donors:   %d\n", report.MaxDonors)
			fmt.Printf("Counter:      %d\n", report.Counter)
			fmt.Printf("Seat holders: %d\n", report.SeatHolders)
			fmt.Printf("Drift:        %+d\n", report.Drift)

			if report.Drift != 0 {
				return fmt.Errorf("seat counter drift of %+d on campaign %s", report.Drift, report.CampaignID)
			}
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the donation completed stream",
	}
	cmd.AddCommand(tailCmd())
	return cmd
}

func tailCmd() *cobra.Command {
	var (
		group    string
		consumer string
		count    int64
		ack      bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Read donation completed events through a consumer group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.db.Redis == nil {
				return fmt.Errorf("redis is disabled, set REDIS_ENABLED=true")
			}

			reader := events.NewReader(app.db.Redis, app.cfg.Redis.Stream, group, consumer)
			if err := reader.EnsureGroup(app.ctx); err != nil {
				return err
			}

			for {
				msgs, err := reader.Read(app.ctx, count)
				if err != nil {
					if app.ctx.Err() != nil {
						return nil
					}
					return err
				}
				for _, m := range msgs {
					fmt.Printf("%s  donation=%s donor=%s campaign=%s quantity=%dml date=%s certificate=%s count=%d\n",
						m.ID, m.Event.DonationID, m.Event.DonorID, m.Event.CampaignID, m.Event.QuantityML,
						m.Event.ActualDate.Format(time.DateOnly), m.Event.CertificateID, m.Event.DonationCount)
					if ack {
						if err := reader.Ack(app.ctx, m.ID); err != nil {
							return err
						}
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&group, "group", "admin-tail", "Consumer group name")
	cmd.Flags().StringVar(&consumer, "consumer", hostnameOr("admin"), "Consumer name within the group")
	cmd.Flags().Int64Var(&count, "count", 10, "Maximum events per read")
	cmd.Flags().BoolVar(&ack, "ack", false, "Acknowledge events after printing them")
	return cmd
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
