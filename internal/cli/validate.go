package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var errNotInteractive = errors.New("this command needs an interactive terminal")

var validateCmd = &cobra.Command{
	Use:   "validate [file|-]",
	Short: "Validate a script without running it",
	Long: `Run a script through the whitelist, structure and static-analysis gates and
print the verdict. Nothing is executed. Reads stdin when the file is "-" or
omitted. Exits non-zero when the script is rejected.

  voxsh validate backup.sh
  echo 'ls -la' | voxsh validate`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateCommand,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var data []byte
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	verdict := newValidator(cfg).Validate(cmd.Context(), string(data))
	if verdict.Accepted {
		fmt.Println("✅ accepted")
		return nil
	}
	fmt.Printf("🛑 rejected by %s gate\n", verdict.Gate)
	fmt.Printf("     Reason: %s\n", verdict.Reason)
	return verdict.Err()
}
