package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/voxsh/internal/logger"
)

var (
	logFilterVerdict  string
	logFilterRejected bool
	logFilterFailed   bool
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the voxsh audit log with filtering and summary options.

Examples:
  voxsh log                        # Show all entries
  voxsh log --last 20              # Show last 20 entries
  voxsh log --rejected             # Show only rejected scripts
  voxsh log --failed               # Show only runs that ended in an error
  voxsh log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterVerdict, "verdict", "", "Filter by verdict (accepted, rejected)")
	logCmd.Flags().BoolVar(&logFilterRejected, "rejected", false, "Show only rejected scripts")
	logCmd.Flags().BoolVar(&logFilterFailed, "failed", false, "Show only runs that ended in an error")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := readAuditLog(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(events) == 0 {
		fmt.Println("No audit log entries found.")
		return nil
	}

	verdict := logFilterVerdict
	if logFilterRejected {
		verdict = "rejected"
	}
	filtered := filterEvents(events, verdict, logFilterFailed)

	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(os.Stdout, events)
		return nil
	}

	printEvents(os.Stdout, filtered)
	return nil
}

func readAuditLog(path string) ([]logger.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []logger.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event logger.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip malformed lines
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func filterEvents(events []logger.AuditEvent, verdict string, failedOnly bool) []logger.AuditEvent {
	if verdict == "" && !failedOnly {
		return events
	}

	var filtered []logger.AuditEvent
	for _, e := range events {
		if verdict != "" && !strings.EqualFold(e.Verdict, verdict) {
			continue
		}
		if failedOnly && e.Error == "" {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(w io.Writer, events []logger.AuditEvent) {
	for _, e := range events {
		fmt.Fprintf(w, "%s %s %s\n", verdictIcon(e), formatTimestamp(e.Timestamp), e.Query)

		if e.Script != "" {
			for _, line := range strings.Split(strings.TrimRight(e.Script, "\n"), "\n") {
				fmt.Fprintf(w, "     $ %s\n", line)
			}
		}
		if e.Verdict == "rejected" {
			fmt.Fprintf(w, "     Rejected (%s): %s\n", e.Gate, e.Reason)
		}
		if e.Executed {
			fmt.Fprintf(w, "     Exit code: %d\n", e.ExitCode)
		}
		if e.Response != "" {
			fmt.Fprintf(w, "     Response: %s\n", e.Response)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", e.Error)
		}
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, all []logger.AuditEvent) {
	var accepted, rejected, unvalidated, executed, failedExit, errorCount int
	for _, e := range all {
		switch e.Verdict {
		case "accepted":
			accepted++
		case "rejected":
			rejected++
		default:
			unvalidated++
		}
		if e.Executed {
			executed++
			if e.ExitCode != 0 {
				failedExit++
			}
		}
		if e.Error != "" {
			errorCount++
		}
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  voxsh Audit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total runs:      %d\n", len(all))
	fmt.Fprintf(w, "  Accepted:        %d\n", accepted)
	fmt.Fprintf(w, "  Rejected:        %d\n", rejected)
	fmt.Fprintf(w, "  Not validated:   %d\n", unvalidated)
	fmt.Fprintf(w, "  Executed:        %d (%d non-zero exit)\n", executed, failedExit)
	fmt.Fprintf(w, "  Errors:          %d\n", errorCount)
	fmt.Fprintln(w, "═══════════════════════════════════════════")

	if len(all) > 0 {
		fmt.Fprintf(w, "  First run:       %s\n", formatTimestamp(all[0].Timestamp))
		fmt.Fprintf(w, "  Last run:        %s\n", formatTimestamp(all[len(all)-1].Timestamp))
	}

	var blocked []logger.AuditEvent
	for _, e := range all {
		if e.Verdict == "rejected" {
			blocked = append(blocked, e)
		}
	}
	if len(blocked) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Rejected scripts:")
		limit := min(len(blocked), 10)
		for _, e := range blocked[len(blocked)-limit:] {
			fmt.Fprintf(w, "    %s %s (%s)\n", formatTimestamp(e.Timestamp), e.Query, e.Reason)
		}
	}

	fmt.Fprintln(w)
}

func verdictIcon(e logger.AuditEvent) string {
	switch {
	case e.Verdict == "rejected":
		return "🛑"
	case e.Error != "":
		return "❌"
	case e.Executed && e.ExitCode != 0:
		return "⚠️"
	case e.Executed:
		return "✅"
	default:
		return "❓"
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
