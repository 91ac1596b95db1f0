package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bastionhq/bastion/internal/control"
	"github.com/bastionhq/bastion/internal/domain"
	"github.com/bastionhq/bastion/internal/infra"
)

// newClient resolves the daemon's control address, preferring the run
// file of a live daemon over the configured default.
func newClient() (*control.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	addr := cfg.ControlAddr
	if state, err := infra.NewRunFile(cfg.DataDir).Read(); err == nil && state != nil {
		addr = state.ControlAddr
	}
	return control.NewClient(addr), nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and timer status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		snap, err := client.Status()
		if err != nil {
			return err
		}

		if snap.Session.Active {
			fmt.Printf("Session:  %s (%s remaining)\n",
				displayLabel(snap.Session.Label), formatDuration(snap.Session.Remaining))
			if snap.Session.HardcoreLocked {
				fmt.Println("Mode:     hardcore (override requires master secret)")
			}
		} else {
			fmt.Println("Session:  none")
		}

		state := "paused"
		if snap.Phase.Running {
			state = "running"
		}
		fmt.Printf("Pomodoro: %s, %s remaining (%s), %d work intervals done\n",
			snap.Phase.Phase, formatDuration(snap.Phase.Remaining), state,
			snap.Phase.CompletedWorkIntervals)
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage focus sessions",
}

var (
	sessionLabel    string
	sessionDuration string
	sessionHardcore bool
	overrideSecret  string
)

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, err := time.ParseDuration(sessionDuration)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", sessionDuration, err)
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		session, err := client.StartSession(sessionLabel, duration, sessionHardcore)
		if err != nil {
			return err
		}
		fmt.Printf("Started %q for %s", displayLabel(session.Label), formatDuration(session.PlannedDuration))
		if session.Hardcore {
			fmt.Print(" in hardcore mode")
		}
		fmt.Println()
		return nil
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.StopSession(); err != nil {
			return err
		}
		fmt.Println("Session stopped")
		return nil
	},
}

var sessionOverrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Stop a hardcore session with the master secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.OverrideSession(overrideSecret); err != nil {
			return err
		}
		fmt.Println("Session stopped by override")
		return nil
	},
}

var pomodoroCmd = &cobra.Command{
	Use:   "pomodoro",
	Short: "Control the interval timer",
}

var (
	pomodoroWork       int
	pomodoroShortBreak int
	pomodoroLongBreak  int
	pomodoroIntervals  int
)

var pomodoroStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the timer",
	RunE:  clientAction(func(c *control.Client) error { return c.StartPomodoro() }),
}

var pomodoroPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the timer",
	RunE:  clientAction(func(c *control.Client) error { return c.PausePomodoro() }),
}

var pomodoroResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the current phase",
	RunE:  clientAction(func(c *control.Client) error { return c.ResetPomodoro() }),
}

var pomodoroConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Set interval lengths",
	RunE: clientAction(func(c *control.Client) error {
		return c.ConfigurePomodoro(pomodoroWork, pomodoroShortBreak, pomodoroLongBreak, pomodoroIntervals)
	}),
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage the block catalog",
}

var blockCategory string

var blockAddSiteCmd = &cobra.Command{
	Use:   "add-site <domain>",
	Short: "Add a website to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		id, err := client.AddSite(args[0], blockCategory)
		if err != nil {
			return err
		}
		fmt.Printf("Added site %s (id %d)\n", args[0], id)
		return nil
	},
}

var blockAppName string

var blockAddAppCmd = &cobra.Command{
	Use:   "add-app <process-name>",
	Short: "Add an application to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		id, err := client.AddApp(blockAppName, args[0], blockCategory)
		if err != nil {
			return err
		}
		fmt.Printf("Added app %s (id %d)\n", args[0], id)
		return nil
	},
}

var blockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		sites, err := client.ListSites()
		if err != nil {
			return err
		}
		apps, err := client.ListApps()
		if err != nil {
			return err
		}

		fmt.Println("Sites:")
		if len(sites) == 0 {
			fmt.Println("  (none)")
		}
		for _, s := range sites {
			fmt.Printf("  [%d] %s%s%s\n", s.ID, s.Domain, categorySuffix(s.Category), disabledSuffix(s.Enabled))
		}
		fmt.Println("Apps:")
		if len(apps) == 0 {
			fmt.Println("  (none)")
		}
		for _, a := range apps {
			fmt.Printf("  [%d] %s (%s)%s%s\n", a.ID, a.Name, a.ProcessName,
				categorySuffix(a.Category), disabledSuffix(a.Enabled))
		}
		return nil
	},
}

func categorySuffix(category string) string {
	if category == "" {
		return ""
	}
	return " [" + category + "]"
}

func disabledSuffix(enabled bool) string {
	if enabled {
		return ""
	}
	return " (disabled)"
}

var blockRmSiteCmd = &cobra.Command{
	Use:   "rm-site <id>",
	Short: "Remove a website from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  idAction(func(c *control.Client, id int64) error { return c.DeleteSite(id) }),
}

var blockRmAppCmd = &cobra.Command{
	Use:   "rm-app <id>",
	Short: "Remove an application from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  idAction(func(c *control.Client, id int64) error { return c.DeleteApp(id) }),
}

var blockEnableSiteCmd = &cobra.Command{
	Use:   "enable-site <id>",
	Short: "Enable a website block",
	Args:  cobra.ExactArgs(1),
	RunE:  idAction(func(c *control.Client, id int64) error { return c.SetSiteEnabled(id, true) }),
}

var blockDisableSiteCmd = &cobra.Command{
	Use:   "disable-site <id>",
	Short: "Disable a website block",
	Args:  cobra.ExactArgs(1),
	RunE:  idAction(func(c *control.Client, id int64) error { return c.SetSiteEnabled(id, false) }),
}

var blockEnableAppCmd = &cobra.Command{
	Use:   "enable-app <id>",
	Short: "Enable an application block",
	Args:  cobra.ExactArgs(1),
	RunE:  idAction(func(c *control.Client, id int64) error { return c.SetAppEnabled(id, true) }),
}

var blockDisableAppCmd = &cobra.Command{
	Use:   "disable-app <id>",
	Short: "Disable an application block",
	Args:  cobra.ExactArgs(1),
	RunE:  idAction(func(c *control.Client, id int64) error { return c.SetAppEnabled(id, false) }),
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring focus windows",
}

var (
	scheduleName     string
	scheduleDays     string
	scheduleStart    string
	scheduleEnd      string
	scheduleHardcore bool
)

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a weekly focus window",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		days := strings.Split(scheduleDays, ",")
		for i := range days {
			days[i] = strings.TrimSpace(days[i])
		}
		id, err := client.AddSchedule(domain.Schedule{
			Name:      scheduleName,
			Days:      days,
			StartTime: scheduleStart,
			EndTime:   scheduleEnd,
			Hardcore:  scheduleHardcore,
			Enabled:   true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added schedule %q (id %d)\n", scheduleName, id)
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List focus windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		schedules, err := client.ListSchedules()
		if err != nil {
			return err
		}
		if len(schedules) == 0 {
			fmt.Println("No schedules")
			return nil
		}
		for _, s := range schedules {
			hardcore := ""
			if s.Hardcore {
				hardcore = " hardcore"
			}
			fmt.Printf("[%d] %s: %s %s-%s%s%s\n", s.ID, s.Name,
				strings.Join(s.Days, ","), s.StartTime, s.EndTime,
				hardcore, disabledSuffix(s.Enabled))
		}
		return nil
	},
}

var scheduleRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a focus window",
	Args:  cobra.ExactArgs(1),
	RunE:  idAction(func(c *control.Client, id int64) error { return c.DeleteSchedule(id) }),
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the master secret",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <secret>",
	Short: "Set the master secret used for hardcore overrides",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.SetSecret(args[0]); err != nil {
			return err
		}
		fmt.Println("Master secret updated")
		return nil
	},
}

var (
	statsDays   int
	statsBlocks int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show protection stats and recent interceptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		stats, err := client.Stats(statsDays)
		if err != nil {
			return err
		}
		fmt.Printf("Last %d days:\n", statsDays)
		if len(stats) == 0 {
			fmt.Println("  (no data)")
		}
		for _, day := range stats {
			fmt.Printf("  %s: %dm protected, %d blocks\n",
				day.Date, day.MinutesProtected, day.BlocksCount)
		}

		events, err := client.RecentBlocks(statsBlocks)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			fmt.Println("Recent interceptions:")
			for _, ev := range events {
				fmt.Printf("  %s  %-11s %s\n",
					ev.BlockedAt.Local().Format("2006-01-02 15:04"), ev.Kind, ev.Target)
			}
		}
		return nil
	},
}

var processesCmd = &cobra.Command{
	Use:   "processes",
	Short: "List running processes visible to the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		procs, err := client.ListProcesses()
		if err != nil {
			return err
		}
		for _, p := range procs {
			fmt.Printf("%8d  %s\n", p.PID, p.Name)
		}
		return nil
	},
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionLabel, "label", "", "Session label")
	sessionStartCmd.Flags().StringVar(&sessionDuration, "duration", "25m", "Session duration (e.g. 45m, 2h)")
	sessionStartCmd.Flags().BoolVar(&sessionHardcore, "hardcore", false, "Refuse early stop without the master secret")
	sessionOverrideCmd.Flags().StringVar(&overrideSecret, "secret", "", "Master secret")
	sessionCmd.AddCommand(sessionStartCmd, sessionStopCmd, sessionOverrideCmd)

	pomodoroConfigCmd.Flags().IntVar(&pomodoroWork, "work", 25, "Work minutes")
	pomodoroConfigCmd.Flags().IntVar(&pomodoroShortBreak, "short-break", 5, "Short break minutes")
	pomodoroConfigCmd.Flags().IntVar(&pomodoroLongBreak, "long-break", 15, "Long break minutes")
	pomodoroConfigCmd.Flags().IntVar(&pomodoroIntervals, "intervals", 4, "Work intervals until a long break")
	pomodoroCmd.AddCommand(pomodoroStartCmd, pomodoroPauseCmd, pomodoroResetCmd, pomodoroConfigCmd)

	blockAddSiteCmd.Flags().StringVar(&blockCategory, "category", "", "Category label")
	blockAddAppCmd.Flags().StringVar(&blockCategory, "category", "", "Category label")
	blockAddAppCmd.Flags().StringVar(&blockAppName, "name", "", "Display name (defaults to the process name)")
	blockCmd.AddCommand(blockAddSiteCmd, blockAddAppCmd, blockListCmd,
		blockRmSiteCmd, blockRmAppCmd,
		blockEnableSiteCmd, blockDisableSiteCmd,
		blockEnableAppCmd, blockDisableAppCmd)

	scheduleAddCmd.Flags().StringVar(&scheduleName, "name", "", "Schedule name")
	scheduleAddCmd.Flags().StringVar(&scheduleDays, "days", "", "Comma-separated days (Mon,Tue,..)")
	scheduleAddCmd.Flags().StringVar(&scheduleStart, "start", "", "Start time (HH:MM)")
	scheduleAddCmd.Flags().StringVar(&scheduleEnd, "end", "", "End time (HH:MM)")
	scheduleAddCmd.Flags().BoolVar(&scheduleHardcore, "hardcore", false, "Start sessions in hardcore mode")
	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRmCmd)

	secretCmd.AddCommand(secretSetCmd)

	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Days of stats to show")
	statsCmd.Flags().IntVar(&statsBlocks, "blocks", 10, "Recent interceptions to show")
}

// clientAction wraps a no-argument client call into a cobra RunE.
func clientAction(fn func(*control.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := fn(client); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
}

// idAction wraps a client call taking a numeric id argument.
func idAction(fn func(*control.Client, int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := fn(client, id); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
}

func displayLabel(label string) string {
	if label == "" {
		return "focus"
	}
	return label
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
