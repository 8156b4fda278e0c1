package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/unihealth/careportal/internal/config"
	"github.com/unihealth/careportal/internal/domain/catalog"
	"github.com/unihealth/careportal/internal/domain/claims"
	"github.com/unihealth/careportal/internal/domain/eligibility"
	"github.com/unihealth/careportal/internal/domain/patient"
	"github.com/unihealth/careportal/internal/domain/prescription"
	"github.com/unihealth/careportal/internal/domain/request"
	"github.com/unihealth/careportal/internal/domain/visit"
	"github.com/unihealth/careportal/internal/platform/chat"
	"github.com/unihealth/careportal/internal/platform/metrics"
	"github.com/unihealth/careportal/internal/platform/middleware"
	"github.com/unihealth/careportal/internal/platform/notification"
	"github.com/unihealth/careportal/internal/platform/rest"
	"github.com/unihealth/careportal/internal/platform/sandbox"
	"github.com/unihealth/careportal/internal/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careportal",
		Short: "University health insurance care portal client",
	}

	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(sandboxCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Shared wiring
// ---------------------------------------------------------------------------

type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	sess    *session.Session
	client  *rest.Client
	metrics *metrics.Metrics
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(cfg.LogLevel)

	sess, err := session.FromToken(cfg.AuthToken)
	if err != nil {
		// opaque sandbox tokens carry no claims
		sess = session.New(cfg.UserID, cfg.AuthToken)
	}

	m := metrics.New()
	client := rest.NewClient(cfg.APIBaseURL, sess, logger,
		rest.WithTimeout(cfg.HTTPTimeout),
		rest.WithMetrics(m),
	)

	return &app{cfg: cfg, logger: logger, sess: sess, client: client, metrics: m}, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ---------------------------------------------------------------------------
// lookup
// ---------------------------------------------------------------------------

func lookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve a patient by employee id or national id",
		RunE: func(cmd *cobra.Command, args []string) error {
			employeeID, _ := cmd.Flags().GetString("employee-id")
			nationalID, _ := cmd.Flags().GetString("national-id")

			a, err := newApp()
			if err != nil {
				return err
			}
			resolver := patient.NewResolver(a.client)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			res, err := resolver.Resolve(ctx, patient.LookupQuery{
				EmployeeID: employeeID,
				NationalID: nationalID,
			})
			if err != nil {
				switch {
				case errors.Is(err, patient.ErrNotFound):
					fmt.Fprintln(os.Stderr, "no client matches the given id")
					os.Exit(1)
				case errors.Is(err, patient.ErrInvalidRole):
					fmt.Fprintln(os.Stderr, "the identity exists but is not an insurance client")
					os.Exit(1)
				}
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().String("employee-id", "", "University employee id")
	cmd.Flags().String("national-id", "", "National id number")
	return cmd
}

// ---------------------------------------------------------------------------
// catalog
// ---------------------------------------------------------------------------

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog [medicines|labs|radiology]",
		Short: "Fetch a coverage pricelist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			employeeID, _ := cmd.Flags().GetString("employee-id")

			a, err := newApp()
			if err != nil {
				return err
			}
			svc := catalog.NewService(a.client)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var items []catalog.Item
			switch args[0] {
			case "medicines":
				items, err = svc.Medicines(ctx)
			case "labs":
				items, err = svc.LabTests(ctx)
			case "radiology":
				items, err = svc.RadiologyTests(ctx)
			default:
				return fmt.Errorf("unknown catalog %q", args[0])
			}
			if err != nil {
				return err
			}

			// with a resolved subject the list is narrowed to what that
			// patient can actually receive
			if employeeID != "" {
				resolver := patient.NewResolver(a.client)
				res, err := resolver.Resolve(ctx, patient.LookupQuery{EmployeeID: employeeID})
				if err != nil {
					return err
				}
				doctor, err := request.NewRESTDoctorResolver(a.client).CurrentDoctor(ctx)
				if err != nil {
					return err
				}
				filtered := eligibility.Filter(items, doctor.Specialization, res.ActiveSubject())
				if filtered.HardFailure {
					fmt.Fprintln(os.Stderr, filtered.Reason)
					os.Exit(1)
				}
				items = filtered.Items
			}
			return printJSON(items)
		},
	}
	cmd.Flags().String("employee-id", "", "Filter the list for this patient's eligibility")
	return cmd
}

// ---------------------------------------------------------------------------
// submit
// ---------------------------------------------------------------------------

// submitFile is the JSON shape accepted by `careportal submit -i`.
type submitFile struct {
	EmployeeID     string `json:"employeeId"`
	NationalID     string `json:"nationalId"`
	FamilyMemberID string `json:"familyMemberId"`

	Diagnosis       string `json:"diagnosis"`
	Treatment       string `json:"treatment"`
	DiagnosisOptOut bool   `json:"diagnosisOptOut"`
	Notes           string `json:"notes"`
	VisitDate       string `json:"visitDate"`

	Medicines []struct {
		MedicineID   string `json:"medicineId"`
		CustomName   string `json:"customName"`
		Dosage       string `json:"dosage"`
		TimesPerDay  int    `json:"timesPerDay"`
		DurationDays int    `json:"durationDays"`
		NoDosage     bool   `json:"noDosage"`
	} `json:"medicines"`
	LabTests []struct {
		TestID     string `json:"testId"`
		CustomName string `json:"customName"`
		Notes      string `json:"notes"`
	} `json:"labTests"`
	RadiologyTests []struct {
		TestID     string `json:"testId"`
		CustomName string `json:"customName"`
		Notes      string `json:"notes"`
	} `json:"radiologyTests"`
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Run a unified medical request submission",
		Long: "Resolves the patient, checks eligibility and active prescriptions, " +
			"creates the visit with its prescriptions and test orders, and files the claim. " +
			"Exits 0 on full success, 2 on partial success, 1 when the submission was aborted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("input")
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var in submitFile
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parse submission file: %w", err)
			}

			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			resolver := patient.NewResolver(a.client)
			res, err := resolver.Resolve(ctx, patient.LookupQuery{
				EmployeeID: in.EmployeeID,
				NationalID: in.NationalID,
			})
			if err != nil {
				return err
			}
			if in.FamilyMemberID != "" {
				if err := res.SelectFamilyMember(in.FamilyMemberID); err != nil {
					return err
				}
			}

			doctors := request.NewRESTDoctorResolver(a.client)
			doctor, err := doctors.CurrentDoctor(ctx)
			if err != nil {
				return err
			}

			guard := prescription.NewGuard(a.client, a.cfg.GuardFailOpen, a.logger, a.metrics)
			subject := res.ActiveSubject()
			medicines := make([]prescription.SelectedMedicine, 0, len(in.Medicines))
			for _, m := range in.Medicines {
				if m.MedicineID != "" {
					decision := guard.Check(ctx, subject.Name, m.MedicineID)
					if !decision.Allow {
						fmt.Fprintln(os.Stderr, decision.Message)
						os.Exit(1)
					}
				}
				medicines = append(medicines, prescription.SelectedMedicine{
					Item:         catalog.Item{ID: m.MedicineID},
					CustomName:   m.CustomName,
					Dosage:       m.Dosage,
					TimesPerDay:  m.TimesPerDay,
					DurationDays: m.DurationDays,
					NoDosage:     m.NoDosage,
				})
			}

			toTests := func(src []struct {
				TestID     string `json:"testId"`
				CustomName string `json:"customName"`
				Notes      string `json:"notes"`
			}) []request.SelectedTest {
				out := make([]request.SelectedTest, 0, len(src))
				for _, t := range src {
					out = append(out, request.SelectedTest{ID: t.TestID, CustomName: t.CustomName, Notes: t.Notes})
				}
				return out
			}

			orch := request.New(doctors, visit.NewService(a.client), a.client,
				claims.NewService(a.client), a.logger, a.metrics)

			result := orch.Submit(ctx, request.Input{
				Resolution:      res,
				Profile:         doctor.Specialization,
				Diagnosis:       in.Diagnosis,
				Treatment:       in.Treatment,
				DiagnosisOptOut: in.DiagnosisOptOut,
				Notes:           in.Notes,
				VisitDate:       in.VisitDate,
				Medicines:       medicines,
				LabTests:        toTests(in.LabTests),
				RadiologyTests:  toTests(in.RadiologyTests),
			})

			if err := printJSON(result); err != nil {
				return err
			}
			switch result.Kind {
			case request.Success:
				return nil
			case request.Partial:
				os.Exit(2)
			default:
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringP("input", "i", "", "Path to the submission JSON file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// ---------------------------------------------------------------------------
// notifications
// ---------------------------------------------------------------------------

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show the unread notification count",
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			readAll, _ := cmd.Flags().GetBool("read-all")

			a, err := newApp()
			if err != nil {
				return err
			}
			svc := notification.NewService(a.client, a.logger)

			if readAll {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := svc.MarkAllRead(ctx); err != nil {
					return err
				}
				fmt.Println("all notifications marked read")
				return nil
			}

			if !watch {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				n, err := svc.UnreadCount(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("unread: %d\n", n)
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			poller := notification.NewPoller(svc, a.cfg.NotifyPollInterval, a.logger)
			poller.Run(ctx, func(unread int) {
				fmt.Printf("unread: %d\n", unread)
			})
			return nil
		},
	}
	cmd.Flags().Bool("watch", false, "Poll the unread count until interrupted")
	cmd.Flags().Bool("read-all", false, "Mark every notification as read")
	return cmd
}

// ---------------------------------------------------------------------------
// chat
// ---------------------------------------------------------------------------

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to the realtime chat and send a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			body, _ := cmd.Flags().GetString("message")

			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := chat.Dial(ctx, a.cfg.ResolvedChatURL(), a.sess, func(msg chat.Message) {
				fmt.Printf("[%s] %s: %s\n", msg.SentAt.Format("15:04:05"), msg.From, msg.Body)
			}, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if to != "" && body != "" {
				if err := client.Send(to, body); err != nil {
					return err
				}
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().String("to", "", "Recipient user id")
	cmd.Flags().String("message", "", "Message body to send on connect")
	return cmd
}

// ---------------------------------------------------------------------------
// sandbox
// ---------------------------------------------------------------------------

func sandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run the in-memory stand-in backend with seeded data",
		RunE: func(cmd *cobra.Command, args []string) error {
			// the sandbox has no upstream, so skip Validate and its
			// API_BASE_URL requirement
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			m := metrics.New()

			srv := sandbox.New()
			srv.Seed()

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.RequestID(), middleware.Logger(logger), middleware.Recovery(logger))
			srv.RegisterRoutes(e)
			e.GET("/metrics", echo.WrapHandler(m.Handler()))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = e.Shutdown(shutdownCtx)
			}()

			logger.Info().Str("port", cfg.SandboxPort).Msg("sandbox listening")
			if err := e.Start(":" + cfg.SandboxPort); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	return cmd
}
