package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/flemzord/tickclaw/internal/state"
	"github.com/flemzord/tickclaw/pkg/app"
	"github.com/spf13/cobra"
)

const timeFormat = "2006-01-02 15:04 MST"

func statusCmd() *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon runs, its schedule and recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := projectDir(cmd)
			if err != nil {
				return err
			}
			report, err := app.Status(cmd.Context(), dir, runs)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().IntVarP(&runs, "runs", "n", 5, "Number of recent runs to show")
	return cmd
}

func printStatus(w io.Writer, r app.StatusReport) {
	fmt.Fprintf(w, "Project: %s\n", r.ProjectDir)
	if !r.Running {
		fmt.Fprintln(w, "Daemon:  not running")
	} else {
		fmt.Fprintf(w, "Daemon:  running (pid %d)\n", r.PID)
	}

	if s := r.State; s != nil {
		printSnapshot(w, s)
	}

	if len(r.Runs) > 0 {
		fmt.Fprintln(w, "\nRecent runs:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  STARTED\tLABEL\tEXIT\tDURATION\tANSWERED")
		for _, run := range r.Runs {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\t%s\n",
				run.StartedAt.Local().Format(timeFormat),
				run.Label,
				run.ExitCode,
				run.Duration().Round(time.Second),
				run.Answered,
			)
		}
		_ = tw.Flush()
	}
}

func printSnapshot(w io.Writer, s *state.Snapshot) {
	fmt.Fprintf(w, "Since:   %s\n", s.StartedAt.Local().Format(timeFormat))
	fmt.Fprintf(w, "Zone:    %s\n", s.Timezone)
	fmt.Fprintf(w, "Level:   %s\n", s.Security.Level)
	if s.Web.Enabled {
		fmt.Fprintf(w, "Gateway: http://%s\n", s.Web.Addr)
	}
	if s.QueueDepth > 0 {
		fmt.Fprintf(w, "Queued:  %d\n", s.QueueDepth)
	}

	switch hb := s.Heartbeat; {
	case !hb.Enabled:
		fmt.Fprintln(w, "Heartbeat: disabled")
	case hb.NextAt != nil:
		note := ""
		if hb.Degenerate {
			note = " (every slot excluded, check excludeWindows)"
		}
		fmt.Fprintf(w, "Heartbeat: every %dm, next %s%s\n", hb.IntervalMinutes, hb.NextAt.Local().Format(timeFormat), note)
		if len(hb.ExcludeWindows) > 0 {
			fmt.Fprintf(w, "  excluded: %s\n", strings.Join(hb.ExcludeWindows, ", "))
		}
	}

	if len(s.Jobs) > 0 {
		fmt.Fprintln(w, "\nJobs:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, j := range s.Jobs {
			next := "-"
			if j.NextAt != nil {
				next = j.NextAt.Local().Format(timeFormat)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", j.Name, scheduleOrDone(j.Schedule), next)
		}
		_ = tw.Flush()
	}
}

func scheduleOrDone(schedule string) string {
	if strings.TrimSpace(schedule) == "" {
		return "(done)"
	}
	return schedule
}

func jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs with their next run time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := projectDir(cmd)
			if err != nil {
				return err
			}
			report, err := app.Check(dir, time.Now())
			if err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), report.Jobs)
			return nil
		},
	}
}

func printJobs(w io.Writer, list []app.JobInfo) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No jobs.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSCHEDULE\tRECURRING\tNOTIFY\tNEXT")
	for _, j := range list {
		next := "-"
		switch {
		case j.Err != nil:
			next = "invalid: " + j.Err.Error()
		case !j.NextAt.IsZero():
			next = j.NextAt.Local().Format(timeFormat)
		}
		notify := string(j.Notify)
		if notify == "" {
			notify = "always"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", j.Name, scheduleOrDone(j.Schedule), j.Recurring, notify, next)
	}
	_ = tw.Flush()
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate settings and job files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := projectDir(cmd)
			if err != nil {
				return err
			}
			report, err := app.Check(dir, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Settings OK (level %s, heartbeat %s)\n", report.Runtime.Level, heartbeatSummary(report))
			for _, j := range report.Jobs {
				switch {
				case j.Err != nil:
					fmt.Fprintf(out, "  ✗ %s: %v\n", j.Name, j.Err)
				case j.Warning != "":
					fmt.Fprintf(out, "  ! %s: %s\n", j.Name, j.Warning)
				default:
					fmt.Fprintf(out, "  ✓ %s\n", j.Name)
				}
			}
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if n := report.Problems(); n > 0 {
				return fmt.Errorf("%d job(s) with invalid schedules", n)
			}
			return nil
		},
	}
}

func heartbeatSummary(r app.CheckReport) string {
	if !r.Settings.Heartbeat.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("every %s", r.Runtime.Interval)
}

func resetSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-session",
		Short: "Forget the agent conversation so the next run starts fresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := projectDir(cmd)
			if err != nil {
				return err
			}
			running, err := app.ResetSession(dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session reset.")
			if running {
				fmt.Fprintln(cmd.OutOrStdout(), "The daemon is running; a run in progress may still finish in the old session.")
			}
			return nil
		},
	}
}
