package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/adzantune/internal/adapter/schedule/myquran"
	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/logger"
)

var (
	scheduleDate     string
	scheduleLocation string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the prayer schedule for a day",
	Long: `Print the prayer schedule for the configured location and, for today,
the next prayer.

Examples:
  adzantune schedule
  adzantune schedule --date 2025-03-14 --location 1301
`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleDate, "date", "", "Date as YYYY-MM-DD (default today)")
	scheduleCmd.Flags().StringVar(&scheduleLocation, "location", "", "Location ID (default schedule.location_id)")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	locationID := cfg.Schedule.LocationID
	if scheduleLocation != "" {
		locationID = scheduleLocation
	}
	if locationID == "" {
		return domain.NewValidationError("schedule.location_id", "", "required (or pass --location)")
	}

	now := time.Now().In(loc)
	date := now
	if scheduleDate != "" {
		date, err = time.ParseInLocation(domain.DateLayout, scheduleDate, loc)
		if err != nil {
			return domain.NewValidationError("date", scheduleDate, "expected YYYY-MM-DD")
		}
	}

	log := logger.NewLogger(logger.Config{Level: logger.ParseLevel(cfg.Log.Level, slog.LevelWarn), Format: cfg.Log.Format})
	client := myquran.NewClient(log, cfg.Schedule.APIBaseURL, nil)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	schedule, err := client.Daily(ctx, locationID, date)
	if err != nil {
		return fmt.Errorf("fetch schedule: %w", err)
	}

	out := cmd.OutOrStdout()
	header := schedule.Date
	if schedule.City != "" {
		header += "  " + schedule.City
	}
	fmt.Fprintln(out, header)
	fmt.Fprintf(out, "  %-8s %s\n", domain.PrayerImsak, schedule.Imsak)
	for _, p := range schedule.PrayerTimes() {
		fmt.Fprintf(out, "  %-8s %s\n", p.Name, p.Time)
	}

	if date.Format(domain.DateLayout) == now.Format(domain.DateLayout) {
		if next, ok := schedule.NextPrayer(now); ok {
			fmt.Fprintf(out, "next: %s at %s\n", next.Name, next.Time)
		}
	}
	return nil
}
