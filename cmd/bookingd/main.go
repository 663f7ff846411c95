package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bookingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Exchange booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}
	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "database URL (postgres://, sqlite:// or a sqlite path)")
	cmd.PersistentFlags().String(flagStore, storeGorm, "store implementation (gorm or pgx)")
	cmd.PersistentFlags().String(flagTimezone, defaultTimezone, "IANA time zone the exchanges operate in")

	cmd.AddCommand(newServeCommand(cfg), newMigrateCommand(cfg), newSweepCommand(cfg), newDirectoryCommand(cfg))
	return cmd
}

func newServeCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booking HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.HTTP.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	flags := cmd.Flags()
	flags.String(flagListenAddr, "", "HTTP listen address")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.String(flagTrustedProxies, "", "comma-separated proxy IPs or CIDRs allowed to set X-Forwarded-For; empty trusts none")
	flags.String(flagJWTSigningKey, "", "HS256 key bearer tokens are signed with (required)")
	flags.String(flagJWTIssuer, "", "expected JWT issuer")
	flags.Float64(flagRateLimitRPS, 0, "sustained requests per second per client")
	flags.Int(flagRateLimitBurst, 0, "request burst per client")
	flags.String(flagAMQPURL, "", "RabbitMQ URL for booking events; empty logs events instead")
	flags.String(flagAMQPExchange, "", "RabbitMQ topic exchange for booking events")
	flags.String(flagRedisAddr, "", "redis address for the availability cache; empty disables caching")
	flags.String(flagRedisPassword, "", "redis password")
	flags.Int(flagRedisDB, 0, "redis database number")
	flags.Duration(flagCacheTTL, 0, "availability cache TTL")
	flags.String(flagOTelEndpoint, "", "OTLP gRPC collector address; empty disables tracing")
	flags.String(flagEnvironment, defaultEnvironment, "deployment environment reported with traces")
	return cmd
}

func newMigrateCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cfg)
		},
	}
}

func newSweepCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cancel pending bookings that were never confirmed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSweep(ctx, cfg)
		},
	}
	cmd.Flags().Duration(flagSweepGrace, 0, "how long a pending booking may sit past its start")
	cmd.Flags().String(flagAMQPURL, "", "RabbitMQ URL for booking events; empty logs events instead")
	cmd.Flags().String(flagAMQPExchange, "", "RabbitMQ topic exchange for booking events")
	cmd.Flags().String(flagRedisAddr, "", "redis address of the availability cache to invalidate; empty skips invalidation")
	cmd.Flags().String(flagRedisPassword, "", "redis password")
	cmd.Flags().Int(flagRedisDB, 0, "redis database number")
	return cmd
}

func newDirectoryCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Manage the bundled exchange and user directory",
	}
	addExchange := &cobra.Command{
		Use:   "add-exchange",
		Short: "Create or update an exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			name, _ := cmd.Flags().GetString("name")
			owner, _ := cmd.Flags().GetString("owner")
			return runAddExchange(cmd.Context(), cfg, id, name, owner)
		},
	}
	addExchange.Flags().String("id", "", "exchange id (required)")
	addExchange.Flags().String("name", "", "display name")
	addExchange.Flags().String("owner", "", "owning user id (required)")

	addUser := &cobra.Command{
		Use:   "add-user",
		Short: "Create or update a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			return runAddUser(cmd.Context(), cfg, id, email, name)
		},
	}
	addUser.Flags().String("id", "", "user id (required)")
	addUser.Flags().String("email", "", "contact email")
	addUser.Flags().String("name", "", "display name")

	cmd.AddCommand(addExchange, addUser)
	return cmd
}
