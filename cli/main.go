package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/haasonsaas/stethoscope/pkg/scoring"
	"github.com/haasonsaas/stethoscope/pkg/validate"
	"github.com/spf13/cobra"
)

var Version = "dev"

type options struct {
	serverURL string
	apiKey    string
	jsonOut   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "stethoscope",
		Short:         "Stethoscope - Linux host health and security scoring",
		Long:          "Submit collector snapshots for analysis and browse your report history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.serverURL, "server", "s", envOr("STETHOSCOPE_SERVER", "http://localhost:8080"), "Stethoscope server URL")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("STETHOSCOPE_API_KEY"), "API key (defaults to $STETHOSCOPE_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print raw JSON")

	rootCmd.AddCommand(
		analyzeCmd(opts),
		scoreCmd(opts),
		reportsCmd(opts),
		reportCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

func analyzeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "Send a collector line to the server for scoring and narrative",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := readLine(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			result, raw, err := newClient(opts).analyze(cmd.Context(), line)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				_, err := out.Write(append(raw, '\n'))
				return err
			}
			printReport(out, result.Report)
			printNarrative(out, result.Narrative, result.NarrativeError)
			if result.ID != "" {
				fmt.Fprintf(out, "\nSaved as %s\n", result.ID)
			}
			return nil
		},
	}
}

func scoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score [file|-]",
		Short: "Validate and score a collector line locally, without a server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := readLine(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			res, err := validate.Validate(line)
			if err != nil {
				return err
			}
			report := scoring.NewEngine().Score(res)

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, report)
			}
			printReport(out, report)
			return nil
		},
	}
}

func reportsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "reports",
		Aliases: []string{"ls", "list"},
		Short:   "List your recent reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := newClient(opts).listReports(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, reports)
			}
			if len(reports) == 0 {
				fmt.Fprintln(out, "No reports yet.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tHOST\tSCORE\tCRITICAL\tWARNING\tCREATED")
			fmt.Fprintln(w, "--\t----\t-----\t--------\t-------\t-------")
			for _, r := range reports {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", r.ID, r.Hostname, r.Score, r.CriticalCount, r.WarningCount, humanize.Time(r.CreatedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of reports to show (max 50)")
	return cmd
}

func reportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "report <id>",
		Short: "Show a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, raw, err := newClient(opts).getReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				_, err := out.Write(append(raw, '\n'))
				return err
			}
			fmt.Fprintf(out, "Report %s (%s)\n\n", detail.ID, humanize.Time(detail.CreatedAt))
			printReport(out, detail.Report)
			printNarrative(out, detail.Narrative, detail.NarrativeError)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stethoscope version %s\n", Version)
		},
	}
}

// readLine takes the collector line from a file argument or stdin.
func readLine(stdin io.Reader, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, 4<<20))
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		return "", fmt.Errorf("no snapshot given; pipe the collector output or pass a file")
	}
	return line, nil
}

func printReport(w io.Writer, report *scoring.Report) {
	if report == nil {
		return
	}
	if s := report.NormalizedSnapshot; s != nil {
		fmt.Fprintf(w, "Host:   %s (%s %s, kernel %s)\n", s.OSInfo.Hostname, s.OSInfo.Distro, s.OSInfo.Version, s.OSInfo.Kernel)
		if s.Memory.TotalKB > 0 {
			fmt.Fprintf(w, "Memory: %s available of %s\n",
				humanize.IBytes(uint64(s.Memory.AvailableKB)*1024),
				humanize.IBytes(uint64(s.Memory.TotalKB)*1024))
		}
		if up := s.Performance.UptimeSeconds; up > 0 {
			fmt.Fprintf(w, "Booted: %s\n", humanize.Time(time.Now().Add(-time.Duration(up)*time.Second)))
		}
	}
	fmt.Fprintf(w, "Score:  %d/%d\n\n", report.Score, scoring.MaxScore)

	if len(report.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tRULE\tPOINTS\tMESSAGE")
	for _, f := range report.Findings {
		fmt.Fprintf(tw, "%s\t%s\t-%d\t%s\n", strings.ToUpper(string(f.Severity)), f.RuleID, f.PointsDeducted, f.Message)
	}
	tw.Flush()
}

func printNarrative(w io.Writer, text, errKind string) {
	switch {
	case text != "":
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(text))
	case errKind != "":
		fmt.Fprintf(w, "\nNarrative unavailable (%s)\n", errKind)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
