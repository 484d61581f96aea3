package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/database"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/festpass/registration-backend/internal/services"
	"github.com/festpass/registration-backend/internal/utils"
	"github.com/festpass/registration-backend/pkg/jwt"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "festadmin",
		Short:   "Operator commands for the fest registration backend",
		Version: version,
	}

	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(generateSecretsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env holds what every database-backed command needs
type env struct {
	cfg    *config.Config
	db     database.DB
	logger *logrus.Logger
}

func setup() (*env, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &env{cfg: cfg, db: db, logger: logger}, nil
}

func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin [email] [full name]",
		Short: "Create an admin account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.db.Close()

			password, _ := cmd.Flags().GetString("password")
			generated := password == ""
			if generated {
				if password, err = utils.GeneratePassword(16); err != nil {
					return err
				}
			}

			jwtService := jwt.NewService(e.cfg.JWT.Secret, e.cfg.JWT.RefreshSecret, e.cfg.JWT.AccessTokenExpiry, e.cfg.JWT.RefreshTokenExpiry)
			auth := services.NewAdminAuthService(database.NewAdminUserRepository(e.db), jwtService, e.logger)

			admin, err := auth.CreateAdmin(cmd.Context(), args[0], args[1], password)
			if err != nil {
				return err
			}

			fmt.Printf("Created admin %s (%s)\n", admin.Email, admin.ID)
			if generated {
				fmt.Printf("Generated password: %s\n", password)
			}
			return nil
		},
	}

	cmd.Flags().StringP("password", "p", "", "Password to set (generated when omitted)")

	return cmd
}

func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List fest registrations waiting for approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.db.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			rows, err := database.NewFestRegistrationRepository(e.db).ListByStatus(cmd.Context(), models.FestRegistrationPending, limit, 0)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No pending fest registrations")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tNAME\tCOLLEGE\tPROOF\tCREATED")
			for _, r := range rows {
				proof := "-"
				if r.PaymentProof != nil {
					proof = *r.PaymentProof
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Email, r.FullName, r.College, proof, r.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntP("limit", "n", 50, "Maximum rows to print")

	return cmd
}

func approveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve [fest-registration-id]",
		Short: "Approve a pending fest registration and email its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid fest registration id: %w", err)
			}
			adminEmail, _ := cmd.Flags().GetString("admin-email")

			e, err := setup()
			if err != nil {
				return err
			}
			defer e.db.Close()
			ctx := cmd.Context()

			admin, err := database.NewAdminUserRepository(e.db).GetByEmail(ctx, models.NormalizeEmail(adminEmail))
			if err != nil {
				return fmt.Errorf("failed to look up admin: %w", err)
			}
			if admin == nil || !admin.IsActive {
				return fmt.Errorf("no active admin with email %s", adminEmail)
			}

			orchestrator, dispatcher, err := newOrchestrator(ctx, e)
			if err != nil {
				return err
			}
			defer dispatcher.Stop()

			approved, err := orchestrator.ApproveFestRegistration(ctx, id, admin.ID)
			if err != nil {
				return err
			}

			fmt.Printf("Approved %s with code %s\n", approved.ID, deref(approved.RegistrationCode))

			drainCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := dispatcher.Drain(drainCtx); err != nil {
				return fmt.Errorf("approval saved but notification not confirmed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("admin-email", "", "Email of the approving admin")
	_ = cmd.MarkFlagRequired("admin-email")

	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run the reconciliation checks once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.db.Close()

			festRepository := database.NewFestRegistrationRepository(e.db)
			reconciler := services.NewReconciliationService(
				database.NewProfileRepository(e.db),
				database.NewPaymentAuditRepository(e.db, e.logger),
				database.NewNotificationDeadLetterRepository(e.db),
				festRepository,
				services.NewMetricsService(),
				e.cfg.Reconcile,
				e.logger,
			)

			report, err := reconciler.Run(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func generateSecretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-secrets",
		Short: "Print fresh JWT signing secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accessSecret, refreshSecret, err := utils.GenerateJWTSecrets()
			if err != nil {
				return fmt.Errorf("failed to generate secrets: %w", err)
			}

			fmt.Println("Add these to your .env file:")
			fmt.Println()
			fmt.Printf("JWT_SECRET=%s\n", accessSecret)
			fmt.Printf("JWT_REFRESH_SECRET=%s\n", refreshSecret)
			return nil
		},
	}
}

// newOrchestrator builds the orchestrator with a running notification dispatcher
func newOrchestrator(ctx context.Context, e *env) (*services.PaymentOrchestratorService, *services.NotificationDispatcher, error) {
	gateway, err := services.NewPaymentGateway(e.cfg.Payment, e.logger)
	if err != nil {
		return nil, nil, err
	}
	renderer, err := services.NewNotificationRenderer(e.cfg.Notify.FestName)
	if err != nil {
		return nil, nil, err
	}
	mailer, err := services.NewMailer(e.cfg.SMTP, e.logger)
	if err != nil {
		return nil, nil, err
	}

	metrics := services.NewMetricsService()
	deadLetters := database.NewNotificationDeadLetterRepository(e.db)
	dispatcher, err := services.NewNotificationDispatcher(e.cfg.Notify, renderer, mailer, deadLetters, metrics, e.logger)
	if err != nil {
		return nil, nil, err
	}
	if err := dispatcher.Start(ctx); err != nil {
		return nil, nil, err
	}

	profileRepository := database.NewProfileRepository(e.db)
	orchestrator := services.NewPaymentOrchestratorService(
		gateway,
		services.NewProfileResolver(profileRepository, e.logger),
		services.NewRegistrationWriter(database.NewRegistrationRepository(e.db), database.NewFestRegistrationRepository(e.db), e.logger),
		database.NewEventRepository(e.db),
		profileRepository,
		database.NewPaymentAuditRepository(e.db, e.logger),
		dispatcher,
		metrics,
		services.PaymentOrchestratorConfig{DefaultCurrency: e.cfg.Payment.DefaultCurrency},
		e.logger,
	)

	return orchestrator, dispatcher, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
