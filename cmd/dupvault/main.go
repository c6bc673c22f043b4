package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"dupvault/internal/appconfig"
	"dupvault/internal/model"
	"dupvault/internal/pipeline"
	"dupvault/internal/progress"
	"dupvault/internal/store"
	"dupvault/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point orchestrates all subcommand wiring
func run() int {
	var (
		projectPath string
		showVersion bool
		quiet       bool
		noProgress  bool
		verbose     bool
	)

	rootCmd := &cobra.Command{
		Use:           "dupvault",
		Short:         "Media-deduplication backup engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "dupvault %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&projectPath, "project", "", "path to the project folder (holds Project.db and Logs/)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable live progress display")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	openProject := func() (*store.Store, func(), error) {
		if projectPath == "" {
			return nil, nil, errors.New("--project is required")
		}
		closeLogs, err := openProjectLogs(projectPath, verbose, quiet)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.Open(filepath.Join(projectPath, "Project.db"))
		if err != nil {
			closeLogs()
			return nil, nil, fmt.Errorf("%w: %w", pipeline.ErrStorageOpen, err)
		}
		closeFn := func() { _ = s.Close(); closeLogs() }
		return s, closeFn, nil
	}

	newOrchestrator := func(s *store.Store) (*pipeline.Orchestrator, func()) {
		presenter := ui.NewPresenter(ui.Config{
			Writer:     os.Stdout,
			ErrWriter:  os.Stderr,
			IsTTY:      ui.IsTTY(os.Stderr.Fd()),
			Quiet:      quiet,
			NoProgress: noProgress,
		})
		orch := pipeline.New(s, nil, presenterAdapter{presenter})
		printSummary := func() {
			if !quiet {
				if s := presenter.Summary(); s != "" {
					fmt.Fprintln(os.Stderr, s)
				}
			}
		}
		return orch, printSummary
	}

	rootCmd.AddCommand(
		newProjectCmd(openProject, &projectCreateOpts{}),
		newRootCmd(openProject),
		newScanCmd(openProject, newOrchestrator),
		newHashCmd(openProject, newOrchestrator),
		newPlanCmd(openProject),
		newCopyCmd(openProject, newOrchestrator),
		newVerifyCmd(openProject, newOrchestrator),
		newStatusCmd(openProject),
		newControlCmd(openProject, "pause", syscall.SIGUSR1),
		newControlCmd(openProject, "resume", syscall.SIGUSR2),
		newControlCmd(openProject, "cancel", syscall.SIGTERM),
	)

	stderrLevel := slog.LevelInfo
	if verbose {
		stderrLevel = slog.LevelDebug
	} else if quiet {
		stderrLevel = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel})))

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// presenterAdapter lets ui.Presenter (Present+Summary) satisfy the plain
// progress.Presenter interface the Dispatcher drives.
type presenterAdapter struct {
	ui.Presenter
}

func (p presenterAdapter) Present(ev progress.Event) { p.Presenter.Present(ev) }

type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

type projectCreateOpts struct{}

func newProjectCmd(openProject func() (*store.Store, func(), error), _ *projectCreateOpts) *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage the project file"}

	var name, destPath, hashLevel, cpuProfile string
	var verifyDefault, archiveScan, archiveNested bool
	var archiveMaxSizeMB, archiveMaxDepth, movieChunkMB int64
	var categories []string

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new project store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()

			cfg, loadErr := appconfig.Load()
			if hashLevel == "" {
				if cfg.Defaults.HashLevel != nil {
					hashLevel = string(*cfg.Defaults.HashLevel)
				} else {
					hashLevel = string(model.HashSHA256)
				}
			}
			if !cmd.Flags().Changed("verify") && cfg.Defaults.VerifyByDefault != nil {
				verifyDefault = *cfg.Defaults.VerifyByDefault
			}
			profile := model.CPUProfile(cpuProfile)
			if profile == "" {
				if cfg.Defaults.CPUProfile != nil {
					profile = *cfg.Defaults.CPUProfile
				} else {
					profile = model.ProfileBalanced
				}
			} else if loadErr == nil {
				cfg.Defaults.CPUProfile = &profile
				if err := appconfig.Save(cfg); err != nil {
					slog.Warn("could not save cpu profile default", "error", err)
				}
			}

			cats := make([]model.Category, len(categories))
			for i, c := range categories {
				cats[i] = model.Category(c)
			}

			return s.InitSettings(cmd.Context(), model.ProjectSettings{
				ProjectName:            name,
				HashLevel:              model.HashAlgorithm(hashLevel),
				CPUProfile:             profile,
				TargetPath:             destPath,
				VerifyByDefault:        verifyDefault,
				ArchiveScanningEnabled: archiveScan,
				ArchiveMaxSizeMB:       archiveMaxSizeMB,
				ArchiveNestedEnabled:   archiveNested,
				ArchiveMaxDepth:        int(archiveMaxDepth),
				MovieHashChunkSizeMB:   movieChunkMB,
				EnabledCategories:      cats,
			})
		},
	}
	initCmd.Flags().StringVar(&name, "name", "", "project display name")
	initCmd.Flags().StringVar(&destPath, "dest", "", "destination root for organized copies")
	initCmd.Flags().StringVar(&hashLevel, "hash-level", "", "sha1|sha256|sha3-256|size-name")
	initCmd.Flags().StringVar(&cpuProfile, "cpu-profile", "", "eco|balanced|fast|max")
	initCmd.Flags().BoolVar(&verifyDefault, "verify", false, "verify every copy by re-hashing")
	initCmd.Flags().BoolVar(&archiveScan, "archive-scan", false, "record archive scanning as enabled in the project settings (enumeration does not open archives)")
	initCmd.Flags().Int64Var(&archiveMaxSizeMB, "archive-max-size-mb", 0, "archive size limit in MB, stored in the project settings only (0 = no limit)")
	initCmd.Flags().BoolVar(&archiveNested, "archive-nested", false, "record nested-archive scanning as enabled in the project settings (not acted on)")
	initCmd.Flags().Int64Var(&archiveMaxDepth, "archive-max-depth", 1, "nested-archive depth limit, stored in the project settings only")
	initCmd.Flags().Int64Var(&movieChunkMB, "movie-hash-chunk-mb", 0, "partial-hash chunk size for movie files in MB (0 = hash whole file)")
	initCmd.Flags().StringSliceVar(&categories, "categories", nil, "restrict scanning to these categories (default: all)")

	statusSub := &cobra.Command{
		Use:   "show",
		Short: "Print the project's current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			settings, err := s.GetSettings()
			if err != nil {
				return err
			}
			fmt.Printf("project: %s\nstate: %s\nhash: %s\nprofile: %s\ndest: %s\n",
				settings.ProjectName, settings.CurrentState, settings.HashLevel,
				settings.CPUProfile, settings.TargetPath)
			return nil
		},
	}

	cmd.AddCommand(initCmd, statusSub)
	return cmd
}

func newRootCmd(openProject func() (*store.Store, func(), error)) *cobra.Command {
	cmd := &cobra.Command{Use: "root", Short: "Manage scan roots"}

	var label string
	addCmd := &cobra.Command{
		Use:   "add <path>",
		Args:  cobra.ExactArgs(1),
		Short: "Register a scan root",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			_, err = s.AddScanRoot(cmd.Context(), model.ScanRoot{
				Path: abs, Label: label, RootType: model.VolumeFixed, IsEnabled: true,
			})
			return err
		},
	}
	addCmd.Flags().StringVar(&label, "label", "", "display label for this root")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered scan roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			roots, err := s.ListScanRoots()
			if err != nil {
				return err
			}
			for _, r := range roots {
				state := "enabled"
				if !r.IsEnabled {
					state = "disabled"
				}
				fmt.Printf("%d  %s  %s  %s  %d files\n", r.ID, r.Path, state, r.Label, r.FileCount)
			}
			return nil
		},
	}

	setEnabled := func(enabled bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid root id: %w", err)
			}
			return s.SetScanRootEnabled(cmd.Context(), id, enabled)
		}
	}
	cmd.AddCommand(addCmd, listCmd,
		&cobra.Command{Use: "enable <id>", Args: cobra.ExactArgs(1), RunE: setEnabled(true)},
		&cobra.Command{Use: "disable <id>", Args: cobra.ExactArgs(1), RunE: setEnabled(false)},
	)
	return cmd
}

// withSignals wires a foreground pipeline command into the process's
// signal handling: SIGINT/SIGTERM cancel the run's context, SIGUSR1/
// SIGUSR2 are translated into orch.Pause/orch.Resume. It also drops a PID
// file next to the project so a separate "pause"/"resume"/"cancel"
// invocation can find this process. The returned func cancels the context,
// stops the signal goroutine and removes the PID file.
func withSignals(cmd *cobra.Command, orch *pipeline.Orchestrator) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)

	removePID, err := writePIDFile(pidFilePath(cmd))
	if err != nil {
		slog.Warn("could not write pid file", "error", err)
	}

	ctrl := make(chan os.Signal, 4)
	signal.Notify(ctrl, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ctrl:
				switch sig {
				case syscall.SIGUSR1:
					if err := orch.Pause(context.Background()); err != nil {
						slog.Warn("pause failed", "error", err)
					}
				case syscall.SIGUSR2:
					if err := orch.Resume(context.Background()); err != nil {
						slog.Warn("resume failed", "error", err)
					}
				}
			}
		}
	}()

	return ctx, func() {
		cancel()
		signal.Stop(ctrl)
		removePID()
	}
}

func newScanCmd(openProject func() (*store.Store, func(), error), newOrchestrator func(*store.Store) (*pipeline.Orchestrator, func())) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Enumerate enabled scan roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			orch, summary := newOrchestrator(s)
			ctx, cancel := withSignals(cmd, orch)
			defer cancel()
			err = orch.Scan(ctx)
			summary()
			return err
		},
	}
}

func newHashCmd(openProject func() (*store.Store, func(), error), newOrchestrator func(*store.Store) (*pipeline.Orchestrator, func())) *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Hash files pending a content hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			orch, summary := newOrchestrator(s)
			ctx, cancel := withSignals(cmd, orch)
			defer cancel()
			err = orch.Hash(ctx)
			summary()
			return err
		},
	}
}

func newPlanCmd(openProject func() (*store.Store, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Build the dedup plan and destination folder tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			orch := pipeline.New(s, nil, nil)
			n, err := orch.Plan(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("plan: %d unique files\n", n)
			return nil
		},
	}
}

func newCopyCmd(openProject func() (*store.Store, func(), error), newOrchestrator func(*store.Store) (*pipeline.Orchestrator, func())) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Execute the copy plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			settings, err := s.GetSettings()
			if err != nil {
				return err
			}
			if settings.TargetPath == "" {
				return errors.New("project has no destination configured")
			}
			orch, summary := newOrchestrator(s)
			ctx, cancel := withSignals(cmd, orch)
			defer cancel()
			err = orch.Copy(ctx, settings.TargetPath)
			summary()
			return err
		},
	}
	return cmd
}

func newVerifyCmd(openProject func() (*store.Store, func(), error), newOrchestrator func(*store.Store) (*pipeline.Orchestrator, func())) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash copied files and compare against the source",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			orch, summary := newOrchestrator(s)
			ctx, cancel := withSignals(cmd, orch)
			defer cancel()
			records, err := orch.Verify(ctx)
			summary()
			if err != nil {
				return err
			}
			mismatches := 0
			for _, r := range records {
				if r.Outcome != "matched" {
					mismatches++
					fmt.Printf("%s: %s %s\n", r.Outcome, r.Detail, boolStr(r.WasRenamed, "(renamed)", ""))
				}
			}
			fmt.Printf("verify: %d checked, %d mismatches\n", len(records), mismatches)
			return nil
		},
	}
}

func boolStr(b bool, t, f string) string {
	if b {
		return t
	}
	return f
}

func newStatusCmd(openProject func() (*store.Store, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the pipeline state and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			settings, err := s.GetSettings()
			if err != nil {
				return err
			}
			counts, err := s.CopyJobCounts()
			if err != nil {
				return err
			}
			fmt.Printf("state: %s\n", settings.CurrentState)
			for _, st := range []model.CopyJobStatus{
				model.JobPending, model.JobInProgress, model.JobCopied, model.JobVerified, model.JobSkipped, model.JobError,
			} {
				fmt.Printf("  %-12s %d\n", st, counts[st])
			}
			if settings.LastError != "" {
				fmt.Printf("last error: %s\n", settings.LastError)
			}
			return nil
		},
	}
}

// newControlCmd sends a control signal to the process recorded in the
// project's PID file, letting the "pause"/"resume"/"cancel" subcommands
// reach a scan/hash/copy already running in another invocation.
func newControlCmd(openProject func() (*store.Store, func(), error), use string, sig syscall.Signal) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Send %s to the running dupvault process for this project", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeFn, err := openProject()
			if err != nil {
				return err
			}
			defer closeFn()
			pid, err := readPIDFile(pidFilePath(cmd))
			if err != nil {
				return fmt.Errorf("no running process recorded for this project: %w", err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			return proc.Signal(sig)
		},
	}
}

func pidFilePath(cmd *cobra.Command) string {
	projectPath, _ := cmd.Flags().GetString("project")
	return filepath.Join(projectPath, "dupvault.pid")
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func writePIDFile(path string) (remove func(), err error) {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return func() {}, err
	}
	return func() { _ = os.Remove(path) }, nil
}

// openProjectLogs truncates and opens the project's Logs/Debug.log and
// Logs/WarningsErrors.log, fanning the process's default slog output to
// both files plus stderr. Debug.log receives every record; WarningsErrors
// receives Warn and above.
func openProjectLogs(projectPath string, verbose, quiet bool) (close func(), err error) {
	logsDir := filepath.Join(projectPath, "Logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrStorageOpen, err)
	}

	debugFile, err := os.Create(filepath.Join(logsDir, "Debug.log"))
	if err != nil {
		return nil, err
	}
	warnFile, err := os.Create(filepath.Join(logsDir, "WarningsErrors.log"))
	if err != nil {
		debugFile.Close()
		return nil, err
	}

	stderrLevel := slog.LevelInfo
	if verbose {
		stderrLevel = slog.LevelDebug
	} else if quiet {
		stderrLevel = slog.LevelWarn
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel}),
		slog.NewTextHandler(debugFile, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(warnFile, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	slog.SetDefault(slog.New(ui.NewMultiHandler(handlers...)))

	return func() {
		debugFile.Close()
		warnFile.Close()
	}, nil
}
