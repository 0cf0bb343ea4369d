package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"grindolympiads/internal/app"
	"grindolympiads/internal/config"
	"grindolympiads/internal/domain"
	"grindolympiads/internal/logging"
)

// NewAdminActionsCmd prints one day of activity the way the admin endpoint returns it.
func NewAdminActionsCmd(configPath *string) *cobra.Command {
	var (
		date    string
		adminID string
	)
	cmd := &cobra.Command{
		Use:   "admin-actions",
		Short: "Print a day of actions grouped by challenge run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logging.Init(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			repos, closeRepos, err := openRepositories(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeRepos()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			svc := app.NewAdminService(repos, repos, repos, repos, repos, loc)

			if date == "" {
				date = time.Now().In(loc).Format("2006-01-02")
			}
			day, err := svc.ParseDay(date)
			if err != nil {
				return err
			}
			result, err := svc.FetchActions(ctx, domain.Session{UserID: adminID}, day)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report (YYYY-MM-DD); defaults to today")
	cmd.Flags().StringVar(&adminID, "admin", "", "id of the admin user running the report")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}
