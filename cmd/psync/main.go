package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"psync-go/internal/app"
	"psync-go/internal/config"
	"psync-go/internal/psync"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a PsyncApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "sync", "delete").
func newApp(operation string) (*app.PsyncApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewPsyncApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// runContext returns a context cancelled on Ctrl-C so a run aborts cleanly
// mid-batch instead of leaving the process to be killed mid-write.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// printProgress writes the per-asset progress line.
func printProgress(p psync.Progress, verb string) {
	status := verb
	if p.Err != nil {
		status = "failed (" + psync.Kind(p.Err) + ")"
	}
	fmt.Printf("%5d / %5d: %20s %s (%9d bytes)\n",
		p.Index, p.Total, p.Asset.Filename, status, p.Asset.Size)
}

// printFailures itemizes per-asset failures after the summary line.
func printFailures(failures []psync.Failure) {
	if len(failures) == 0 {
		return
	}
	fmt.Printf("\n%d failure(s):\n", len(failures))
	for _, f := range failures {
		fmt.Printf("  %s  %s  [%s] %v\n", f.AssetID, f.Filename, psync.Kind(f.Err), f.Err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "psync",
	Short: "Mirror photos and videos from a remote device",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Target Dir: %s\n", cfg.TargetDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:     %s\n", cfg.HostID)
		fmt.Printf("Remote:      %s\n", cfg.Remote)
		fmt.Printf("Target Dir:  %s\n", cfg.TargetDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
		fmt.Printf("Journal:     %s\n", cfg.Journal.Type)
		if cfg.Archive.Type != "" && cfg.Archive.Type != "none" {
			fmt.Printf("Archive:     %s\n", cfg.Archive.Type)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate an archive encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("keys-init")
		if err != nil {
			return err
		}
		defer a.Close()

		enc := a.Encryptor()
		if enc == nil {
			return fmt.Errorf("encryption is not enabled in the config")
		}
		if enc.IsConfigured() {
			return fmt.Errorf("keys already exist; refusing to overwrite")
		}

		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a sync would fetch, without fetching",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("plan")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := runContext()
		defer cancel()

		plan, err := a.Plan(ctx)
		if err != nil {
			return err
		}

		for _, asset := range plan.ToFetch {
			fmt.Printf("fetch  %s  %s  (%d bytes)\n", asset.ID, asset.Filename, asset.Size)
		}
		fmt.Printf("\n%d to fetch, %d already mirrored\n", len(plan.ToFetch), len(plan.Present))
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror remote assets into the local tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("sync")
		if err != nil {
			return err
		}
		defer a.Close()

		a.SetProgress(func(p psync.Progress) {
			printProgress(p, "published")
		})

		ctx, cancel := runContext()
		defer cancel()

		report, err := a.Sync(ctx)
		if err != nil {
			if report != nil && errors.Is(err, context.Canceled) {
				fmt.Printf("\nInterrupted: %d published before cancellation\n", report.Published)
			}
			return err
		}

		fmt.Printf("\n%d published, %d already mirrored, %d failed\n",
			report.Published, report.Skipped, len(report.Failures))
		printFailures(report.Failures)
		if len(report.Failures) > 0 {
			return fmt.Errorf("%d asset(s) failed", len(report.Failures))
		}
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete remote assets that are verifiably mirrored locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp("delete")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := runContext()
		defer cancel()

		plan, err := a.Plan(ctx)
		if err != nil {
			return err
		}
		if len(plan.Present) == 0 {
			fmt.Println("Nothing to delete: no remote assets are mirrored locally.")
			return nil
		}

		if !yes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("refusing to delete without confirmation; pass --yes to proceed")
			}
			fmt.Printf("Delete %d remote asset(s) mirrored locally? [y/N] ", len(plan.Present))
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading confirmation: %w", err)
			}
			if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a.SetProgress(func(p psync.Progress) {
			printProgress(p, "deleted")
		})

		report, err := a.DeleteMirrored(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\n%d deleted, %d not yet mirrored, %d failed\n",
			report.Deleted, report.Skipped, len(report.Failures))
		printFailures(report.Failures)
		if len(report.Failures) > 0 {
			return fmt.Errorf("%d asset(s) failed", len(report.Failures))
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Rehash every local record and report corruption",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("verify")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.VerifyLocal()
		if err != nil {
			return err
		}

		bad := 0
		for _, r := range results {
			if !r.OK {
				bad++
				fmt.Printf("CORRUPT  %s  %s\n", r.Entry.ID, r.Entry.Filename)
			}
		}

		fmt.Printf("%d record(s) checked, %d corrupt\n", len(results), bad)
		if bad > 0 {
			return fmt.Errorf("%d corrupt record(s)", bad)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past sync and delete runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		showEvents, _ := cmd.Flags().GetBool("events")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt != nil {
				d := run.FinishedAt.Sub(run.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-6s  %s  %-8s  published:%d deleted:%d failed:%d  %s\n",
				run.ID,
				run.Mode,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				run.Published,
				run.Deleted,
				run.Failed,
				duration,
			)

			if !showEvents {
				continue
			}
			events, err := a.RunEvents(run.ID)
			if err != nil {
				return err
			}
			for _, e := range events {
				detail := ""
				if e.Detail != "" {
					detail = "  " + e.Detail
				}
				fmt.Printf("    %-9s  %s  %s%s\n", e.Action, e.AssetID, e.Filename, detail)
			}
		}
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Access the offsite archive",
}

var archiveGetCmd = &cobra.Command{
	Use:   "get ASSET_ID",
	Short: "Fetch an archived asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		decrypt, _ := cmd.Flags().GetBool("decrypt")

		a, err := newApp("archive-get")
		if err != nil {
			return err
		}
		defer a.Close()

		var dec psync.DecryptionContext
		if decrypt {
			enc := a.Encryptor()
			if enc == nil {
				return fmt.Errorf("encryption is not enabled in the config")
			}
			passphrase, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			dec, err = enc.Unlock(passphrase)
			if err != nil {
				return fmt.Errorf("unlocking key: %w", err)
			}
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()

		if err := a.ArchiveGet(args[0], f, dec); err != nil {
			os.Remove(output)
			return err
		}

		fmt.Printf("Wrote %s\n", output)
		return nil
	},
}

// readPassphrase prompts for a passphrase without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

// readNewPassphrase prompts twice and requires both entries to match.
func readNewPassphrase() (string, error) {
	first, err := readPassphrase("New passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	second, err := readPassphrase("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// archive subcommands
	archiveCmd.AddCommand(archiveGetCmd)
	archiveGetCmd.Flags().StringP("output", "o", "asset.out", "Output file path")
	archiveGetCmd.Flags().Bool("decrypt", false, "Decrypt content with the archive key")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	historyCmd.Flags().Bool("events", false, "Show per-asset events for each run")
	rootCmd.AddCommand(archiveCmd)
}
