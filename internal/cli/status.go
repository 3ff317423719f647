package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/gzhole/voxsh/internal/config"
	"github.com/gzhole/voxsh/internal/retrieval"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show voxsh status: provider, tools, index, audit log",
	Long: `Check whether voxsh can run: which provider is configured and has a key,
whether the static-analysis and sandbox tools are installed, whether the
retrieval index loads, and where the audit log lives.

  voxsh status`,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  voxsh Status")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()

	binPath, berr := os.Executable()
	if berr != nil {
		binPath = "unknown"
	}
	fmt.Printf("  Binary:    %s (%s)\n", binPath, Version)
	if err != nil {
		fmt.Printf("  ❌ Config: %v\n", err)
		return nil
	}
	fmt.Printf("  Config:    %s\n", cfg.ConfigDir)
	fmt.Println()

	fmt.Println("─── Language Model ────────────────────────────────────")
	if cfg.Provider.APIKey != "" {
		fmt.Printf("  ✅ %s: API key set\n", cfg.Provider.Name)
	} else {
		fmt.Printf("  ❌ %s: no API key in the environment\n", cfg.Provider.Name)
	}
	fmt.Println()

	fmt.Println("─── Tools ─────────────────────────────────────────────")
	checkTool("Static analysis", cfg.Validator.Shellcheck)
	if cfg.Sandbox.Launcher == "firejail" {
		checkTool("Sandbox (firejail)", cfg.Sandbox.Firejail)
	} else {
		fmt.Printf("  ✅ Sandbox: %s (namespaces)\n", cfg.Sandbox.Launcher)
	}
	checkTool("Shell", cfg.Sandbox.Shell)
	fmt.Println()

	fmt.Println("─── Retrieval Index ───────────────────────────────────")
	checkIndex(cfg)
	fmt.Println()

	fmt.Println("─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(cfg.LogPath)
	fmt.Println()

	return nil
}

func checkTool(name, bin string) {
	path, err := exec.LookPath(bin)
	if err != nil {
		fmt.Printf("  ❌ %s: %s not found in PATH\n", name, bin)
		return
	}
	fmt.Printf("  ✅ %s: %s\n", name, path)
}

func checkIndex(cfg *config.Config) {
	if cfg.Retrieval.Disabled {
		fmt.Println("  ⬚  disabled (retrieval.disabled: true)")
		return
	}
	ix, err := retrieval.Load(cfg.Retrieval.IndexDir)
	if err != nil {
		fmt.Printf("  ❌ %s: %v\n", cfg.Retrieval.IndexDir, err)
		return
	}
	meta := ix.Meta()
	fmt.Printf("  ✅ %s\n", cfg.Retrieval.IndexDir)
	fmt.Printf("     %d passages, %d dimensions, %s metric\n", ix.Len(), ix.Dim(), ix.Metric())
	if meta.Provider != "" {
		fmt.Printf("     built with %s %s\n", meta.Provider, meta.Model)
	}
}

func checkAuditLog(path string) {
	if path == "" {
		fmt.Println("  ⬚  No audit log path configured")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("  ⬚  %s (not yet created, will start on first run)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Printf("  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Printf("  ✅ %s (%d KB)\n", path, sizeKB)
	}
}
