package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kuitang/spverify/internal/browser"
	"github.com/kuitang/spverify/internal/config"
	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/evidence"
	"github.com/kuitang/spverify/internal/obs"
	"github.com/kuitang/spverify/internal/report"
	"github.com/kuitang/spverify/internal/runner"
	"github.com/kuitang/spverify/internal/s3client"
	"github.com/kuitang/spverify/internal/scenario"
	"github.com/kuitang/spverify/internal/scenarios"
	"github.com/kuitang/spverify/internal/suite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Scenarios []string
	Files     []string
	Dirs      []string
	Tags      []string
	Install   bool
	Overrides config.Overrides
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions, deps Deps) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run verification scenarios",
		Long: `Run built-in and file-based scenarios, each in its own browser context.

With no --scenario, --file or --dir every built-in scenario runs. Evidence
and reports are written to the evidence directory. The command exits
non-zero when any scenario fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Overrides.LogLevel = rootOpts.LogLevel
			return runRun(cmd.Context(), opts, deps, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.Scenarios, "scenario", "s", nil, "built-in scenario to run (repeatable)")
	f.StringSliceVarP(&opts.Files, "file", "f", nil, "YAML scenario file to run (repeatable)")
	f.StringSliceVar(&opts.Dirs, "dir", nil, "directory of YAML scenario files (repeatable)")
	f.StringSliceVar(&opts.Tags, "tag", nil, "only run scenarios carrying one of these tags")
	f.BoolVar(&opts.Install, "install", false, "download the Playwright driver and browser before launching")

	f.StringVar(&opts.Overrides.BaseURL, "base-url", "", "admin dashboard origin")
	f.StringVar(&opts.Overrides.LoginURL, "login-url", "", "SP portal origin")
	f.StringVar(&opts.Overrides.Browser, "browser", "", "browser engine (chromium|firefox|webkit)")
	f.BoolVar(&opts.Overrides.Headed, "headed", false, "show the browser window")
	f.IntVarP(&opts.Overrides.Parallel, "parallel", "p", 0, "scenarios to run at once")
	f.StringVar(&opts.Overrides.EvidenceDir, "evidence-dir", "", "directory for screenshots and reports")
	f.DurationVar(&opts.Overrides.StepTimeout, "step-timeout", 0, "default per-step timeout")

	return cmd
}

func runRun(ctx context.Context, opts *RunOptions, deps Deps, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts.Overrides)
	if err != nil {
		return err
	}

	selected, err := selectScenarios(cfg, opts)
	if err != nil {
		return err
	}

	runID := newRunID(time.Now())
	ctx = obs.WithRunID(ctx, runID)
	log := obs.From(ctx)
	cfg.PrintStartupSummary(stderr)

	var mirror *s3client.Client
	if cfg.MirrorEnabled() {
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
			UsePathStyle:    cfg.AWSEndpointS3 != "",
		})
		if err != nil {
			return errs.Wrap(errs.Unavailable, "configure evidence mirror", err)
		}
		mirror = client
	}

	launcher, err := deps.Launch(browser.Options{
		Engine:         cfg.Browser,
		Headless:       cfg.Headless,
		SlowMo:         cfg.SlowMo,
		Width:          cfg.Viewport[0],
		Height:         cfg.Viewport[1],
		DefaultTimeout: cfg.StepTimeout,
		Install:        opts.Install,
	})
	if err != nil {
		return errs.Wrap(errs.Unavailable, "launch browser", err)
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			log.Warn("browser_close_failed", "error", err)
		}
	}()

	store := evidence.NewStore(cfg.EvidenceDir, runID, nil)
	if mirror != nil {
		store = evidence.NewStore(cfg.EvidenceDir, runID, mirror)
	}
	s := &suite.Suite{
		Runner: &runner.Runner{
			StepTimeout:  cfg.StepTimeout,
			PollInterval: cfg.PollInterval,
			BaseURL:      cfg.BaseURL,
			Evidence:     store,
		},
		Contexts: launcher,
		Parallel: cfg.Parallel,
	}
	rep := s.Run(ctx, selected)

	written, err := report.WriteFiles(cfg.EvidenceDir, rep)
	if err != nil {
		log.Error("report_write_failed", "error", err)
	}

	printSummary(stdout, rep, store.Artifacts(), written)
	if mirror != nil {
		prefix := runID + "/"
		keys, err := mirror.ListKeys(ctx, prefix)
		if err != nil {
			log.Warn("evidence_mirror_list_failed", "error", err)
		} else {
			fmt.Fprintf(stdout, "mirror:   %d object(s) under %s\n", len(keys), mirror.Location(prefix))
		}
	}
	if rep.Passed() {
		return nil
	}
	return &ExitError{Status: exitStatus(rep)}
}

// selectScenarios resolves built-in names, files and directories into one
// list, rejecting duplicate names, then applies the tag filter.
func selectScenarios(cfg *config.Config, opts *RunOptions) ([]scenario.Scenario, error) {
	var out []scenario.Scenario

	if len(opts.Scenarios) == 0 && len(opts.Files) == 0 && len(opts.Dirs) == 0 {
		all, err := scenarios.All(cfg)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "build scenarios", err)
		}
		out = all
	}
	for _, name := range opts.Scenarios {
		sc, err := scenarios.Build(name, cfg)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "build scenario", err)
		}
		out = append(out, sc)
	}
	for _, path := range opts.Files {
		loaded, err := scenario.LoadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "load scenarios", err)
		}
		out = append(out, loaded...)
	}
	for _, dir := range opts.Dirs {
		loaded, err := scenario.LoadDir(dir)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "load scenarios", err)
		}
		out = append(out, loaded...)
	}

	seen := make(map[string]bool, len(out))
	for _, sc := range out {
		if seen[sc.Name] {
			return nil, errs.Newf(errs.InvalidArgument, "scenario %q selected more than once", sc.Name)
		}
		seen[sc.Name] = true
	}

	if len(opts.Tags) > 0 {
		filtered := out[:0]
		for _, sc := range out {
			for _, tag := range opts.Tags {
				if sc.HasTag(tag) {
					filtered = append(filtered, sc)
					break
				}
			}
		}
		out = filtered
	}
	if len(out) == 0 {
		return nil, errs.New(errs.InvalidArgument, "no scenarios selected")
	}
	return out, nil
}

func newRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

func printSummary(w io.Writer, rep suite.Report, artifacts []evidence.Artifact, written []string) {
	for _, res := range rep.Results {
		if res.Passed() {
			fmt.Fprintf(w, "PASS  %s (%d steps, %s)\n", res.Scenario, len(res.Steps), res.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(w, "FAIL  %s\n", res.Scenario)
		if step, ok := res.FailedStep(); ok {
			fmt.Fprintf(w, "      step %d: %s\n", step.Index, step.Description)
		}
		fmt.Fprintf(w, "      %s\n", errs.Format(res.Err))
	}
	for _, a := range artifacts {
		fmt.Fprintf(w, "evidence: %s\n", a.Path)
	}
	for _, path := range written {
		fmt.Fprintf(w, "report:   %s\n", path)
	}

	passed, failed := rep.Counts()
	if failed == 0 {
		fmt.Fprintf(w, "\nAll %d scenario(s) passed.\n", passed)
		return
	}
	fmt.Fprintf(w, "\n%d of %d scenario(s) failed.\n", failed, passed+failed)
}

// exitStatus uses the code of the first failure.
func exitStatus(rep suite.Report) int {
	for _, res := range rep.Results {
		if !res.Passed() {
			return errs.ExitCode(errs.CodeOf(res.Err))
		}
	}
	return 0
}
