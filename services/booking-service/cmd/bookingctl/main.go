// Command bookingctl is the operator CLI for booking-service: schema
// migrations, publishing appointment types and inspecting a day's slots.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/auth"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/db"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/runtime"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	Timezone    string `mapstructure:"SCHEDULING_TIMEZONE"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
}

func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("SCHEDULING_TIMEZONE", "UTC")
	v.SetDefault("LOG_LEVEL", "warn")

	v.BindEnv("DATABASE_URL")
	v.BindEnv("SCHEDULING_TIMEZONE")
	v.BindEnv("LOG_LEVEL")

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(typesCmd())
	rootCmd.AddCommand(slotsCmd())

	ctx, cancel := runtime.SignalContext()
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withPool opens the database named by the configuration for one command.
func withPool(ctx context.Context, fn func(*Config, *db.Pool) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()
	return fn(cfg, pool)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(_ *Config, pool *db.Pool) error {
				n, err := db.NewMigrator(pool).Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(_ *Config, pool *db.Pool) error {
				statuses, err := db.NewMigrator(pool).Status(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, st := range statuses {
					applied := "pending"
					if st.AppliedAt != nil {
						applied = st.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%03d\t%s\t%s\n", st.Version, st.Name, applied)
				}
				return w.Flush()
			})
		},
	})
	return cmd
}

func typesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List and publish appointment types",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List appointment types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(_ *Config, pool *db.Pool) error {
				types, err := storage.NewStore(pool).ListTypes(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tMINUTES\tAPPROVAL\tPUBLIC\tTOKEN")
				for _, t := range types {
					token := "-"
					if t.PublicBookingToken != "" {
						token = t.PublicBookingToken
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%t\t%s\n", t.ID, t.Name, t.DurationMinutes, t.RequiresApproval, t.PublicBookingEnabled, token)
				}
				return w.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "publish <type-id>",
		Short: "Enable public booking under a fresh token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid type id: %w", err)
			}
			token, err := booking.NewPublishingToken()
			if err != nil {
				return err
			}
			return withPool(cmd.Context(), func(_ *Config, pool *db.Pool) error {
				t, err := storage.NewStore(pool).PublishType(cmd.Context(), id, token)
				if err != nil {
					return fmt.Errorf("publish %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is bookable at /api/v1/public/booking/%s\n", t.Name, t.PublicBookingToken)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unpublish <type-id>",
		Short: "Disable public booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid type id: %w", err)
			}
			return withPool(cmd.Context(), func(_ *Config, pool *db.Pool) error {
				t, err := storage.NewStore(pool).UnpublishType(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("unpublish %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer publicly bookable\n", t.Name)
				return nil
			})
		},
	})
	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print a day's slot grid for an appointment type",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeRaw, _ := cmd.Flags().GetString("type")
			dateRaw, _ := cmd.Flags().GetString("date")
			staffRaw, _ := cmd.Flags().GetString("staff")
			businessRaw, _ := cmd.Flags().GetString("business")

			q := booking.SlotQuery{}
			var err error
			if q.AppointmentTypeID, err = uuid.Parse(typeRaw); err != nil {
				return fmt.Errorf("invalid --type: %w", err)
			}
			if q.StaffID, err = optionalUUID(staffRaw); err != nil {
				return fmt.Errorf("invalid --staff: %w", err)
			}
			if q.BusinessID, err = optionalUUID(businessRaw); err != nil {
				return fmt.Errorf("invalid --business: %w", err)
			}

			return withPool(cmd.Context(), func(cfg *Config, pool *db.Pool) error {
				loc, err := time.LoadLocation(cfg.Timezone)
				if err != nil {
					return fmt.Errorf("SCHEDULING_TIMEZONE: %w", err)
				}
				if q.Date, err = time.ParseInLocation(time.DateOnly, dateRaw, loc); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}

				store := storage.NewStore(pool)
				logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: runtime.ParseLevel(cfg.LogLevel)}))
				mgr := booking.NewManager(store, availability.NewResolver(store, loc), nil, logger, booking.ManagerConfig{})

				slots, err := mgr.AvailableSlots(cmd.Context(), auth.Identity{Role: auth.RoleAdmin}, q)
				if err != nil {
					return err
				}
				return printSlots(cmd.OutOrStdout(), slots, loc)
			})
		},
	}
	cmd.Flags().String("type", "", "Appointment type id")
	cmd.Flags().String("date", time.Now().Format(time.DateOnly), "Day to list (YYYY-MM-DD)")
	cmd.Flags().String("staff", "", "Restrict to one staff member")
	cmd.Flags().String("business", "", "Business id, for types without one")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func printSlots(out io.Writer, slots []availability.Slot, loc *time.Location) error {
	if len(slots) == 0 {
		_, err := fmt.Fprintln(out, "No slots.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tAVAILABLE")
	for _, s := range slots {
		fmt.Fprintf(w, "%s\t%s\t%t\n", s.Start.In(loc).Format("15:04"), s.End.In(loc).Format("15:04"), s.Available)
	}
	return w.Flush()
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
