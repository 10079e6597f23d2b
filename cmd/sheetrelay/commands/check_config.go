package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"sheetrelay/gateway/config"
	"sheetrelay/gateway/internal/webhook"
)

// CheckConfigAction prints the resolved configuration. Secrets are masked.
func CheckConfigAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return err
	}
	return printConfig(os.Stdout, cfg)
}

func printConfig(out io.Writer, cfg config.Config) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"PORT", fmt.Sprint(cfg.Port)},
		{"N8N_WEBHOOK_URL", orNotSet(cfg.N8NWebhookURL)},
		{"SHARED_SECRET_KEY", mask(cfg.SharedSecretKey)},
		{"PUBLIC_BASE_URL", cfg.PublicBaseURL},
		{"REQUIRE_CALLBACK_TOKEN", fmt.Sprint(cfg.RequireCallbackToken)},
		{"JOB_RETENTION", cfg.JobRetention.String()},
		{"SWEEP_INTERVAL", cfg.SweepInterval.String()},
		{"DISPATCH_TIMEOUT", cfg.DispatchTimeout.String()},
		{"DOWNLOAD_TIMEOUT", cfg.DownloadTimeout.String()},
		{"DISPATCH_WORKERS", fmt.Sprint(cfg.DispatchWorkers)},
		{"DISPATCH_QUEUE_SIZE", fmt.Sprint(cfg.DispatchQueueSize)},
		{"UPLOAD_DIR", cfg.UploadDir},
		{"COMPLETED_DIR", cfg.CompletedDir},
		{"MAX_UPLOAD_MB", fmt.Sprint(cfg.MaxUploadMB)},
		{"LOG_LEVEL", cfg.LogLevel},
		{"LOG_FORMAT", cfg.LogFormat},
		{"SUPABASE_URL", orNotSet(cfg.SupabaseURL)},
		{"SUPABASE_SERVICE_KEY", mask(cfg.SupabaseServiceKey)},
		{"SUPABASE_JOBS_TABLE", cfg.SupabaseJobsTable},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if err := webhook.ValidateEndpoint(cfg.N8NWebhookURL); err != nil {
		fmt.Fprintf(out, "\nwebhook: NOT USABLE (%v); uploads will stay PENDING\n", err)
	} else {
		fmt.Fprintf(out, "\nwebhook: ok (%d characters)\n", len(cfg.N8NWebhookURL))
	}
	if cfg.SharedSecretKey == "" {
		fmt.Fprintln(out, "auth: SHARED_SECRET_KEY is not set; /api routes will answer 500")
	}
	return nil
}

func orNotSet(v string) string {
	if v == "" {
		return "NOT SET"
	}
	return v
}

func mask(v string) string {
	switch {
	case v == "":
		return "NOT SET"
	case len(v) <= 4:
		return "****"
	default:
		return v[:2] + "****" + v[len(v)-2:]
	}
}
