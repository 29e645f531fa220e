package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"recurset/internal/config"
	"recurset/internal/ics"
	"recurset/internal/model"
)

func NewNormalizeCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize FILE",
		Short: "Print the canonical form of a rule text",
		Long: `Normalize parses a rule text and prints it back in canonical form:
one DTSTART/RRULE pair or RDATE per source, ordered by first occurrence,
with rule anchors and UNTIL bounds normalized and EXDATE lines last.

Use "-" to read from stdin.

Examples:
  recurset normalize office-hours.txt
  printf 'DURATION:PT1H\nRDATE:20200101T090000Z' | recurset normalize -
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := g.parseFile(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), set.String())
			return nil
		},
	}
}

func NewInfoCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Summarize the bounds and durations of a rule text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := g.parseFile(cmd, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sources:     %d\n", len(set.Intervals()))
			fmt.Fprintf(out, "exclusions:  %d\n", len(set.Exclusions()))
			fmt.Fprintf(out, "unbounded:   %t\n", set.Unbounded())
			fmt.Fprintf(out, "first start: %s\n", optionalTime(set.FirstStart().Get()))
			fmt.Fprintf(out, "last end:    %s\n", optionalTime(set.LastEnd().Get()))
			fmt.Fprintf(out, "min length:  %s\n", optionalDuration(set.MinimumDuration().Get()))
			fmt.Fprintf(out, "max length:  %s\n", optionalDuration(set.MaximumDuration().Get()))
			return nil
		},
	}
}

func NewBetweenCommand(g *globalOptions) *cobra.Command {
	var from, until string
	var days int

	command := &cobra.Command{
		Use:   "between FILE",
		Short: "List occurrences starting within a window",
		Long: `Between lists every occurrence whose start lies in [from, until].

Times are RFC 3339 or yyyyMMddTHHmmss[Z]; zoneless values use the
configured timezone.

Examples:
  recurset between office-hours.txt --from 2020-01-01T00:00:00Z --days 14
  recurset between office-hours.txt --from 20200101T000000 --until 20200201T000000
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, cfg, err := g.parseFile(cmd, args[0])
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			start, err := timeFlag(from, loc)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			end := start.AddDate(0, 0, days)
			if until != "" {
				if end, err = config.ParseTime(until, loc); err != nil {
					return fmt.Errorf("invalid --until: %w", err)
				}
			}
			if end.Before(start) {
				return fmt.Errorf("--until %s is before --from %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
			}

			for _, iv := range set.Between(start, end) {
				fmt.Fprintln(cmd.OutOrStdout(), iv.String())
			}
			return nil
		},
	}

	command.Flags().StringVar(&from, "from", "", "Window start (default now)")
	command.Flags().StringVar(&until, "until", "", "Window end (overrides --days)")
	command.Flags().IntVar(&days, "days", 7, "Window length in days")
	return command
}

func NewNextCommand(g *globalOptions) *cobra.Command {
	var after string

	command := &cobra.Command{
		Use:   "next FILE",
		Short: "Print the first occurrence starting after a point in time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, cfg, err := g.parseFile(cmd, args[0])
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			at, err := timeFlag(after, loc)
			if err != nil {
				return fmt.Errorf("invalid --after: %w", err)
			}

			iv, ok := set.FirstAfter(at).Get()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "none")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), iv.String())
			return nil
		},
	}

	command.Flags().StringVar(&after, "after", "", "Reference time (default now)")
	return command
}

func timeFlag(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Now().In(loc), nil
	}
	return config.ParseTime(raw, loc)
}

func optionalTime(t time.Time, ok bool) string {
	if !ok {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func optionalDuration(d model.Duration, ok bool) string {
	if !ok {
		return "-"
	}
	return ics.FormatDuration(d)
}
