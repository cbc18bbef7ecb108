package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/studyctl/internal/cliconfig"
)

const helpBanner = `
     _             _            _   _ 
 ___| |_ _   _  __| |_   _  ___| |_| |
/ __| __| | | |/ _' | | | |/ __| __| |
\__ \ |_| |_| | (_| | |_| | (__| |_| |
|___/\__|\__,_|\__,_|\__, |\___|\__|_|
                     |___/            
`

const helpDescription = `
Run an opt-in, time-boxed study inside its host application.

Highlights:
  - Checks consent and the study deadline before anything else starts.
  - Defers heavy startup until the host reports its UI is ready.
  - Tears every service down in a fixed order, even after failures.
  - Purges per-user study state only on a real uninstall.
`

var longHelp = strings.TrimSpace(helpBanner) + "\n\n" + strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  studyctl --install-path ./study --reason addon-install --tracking-input -
  studyctl --config $HOME/.studyctl/config.toml --shutdown-reason addon-uninstall
  studyctl status
  studyctl optin
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	// loadConfig applies file, then env, then flags, and validates.
	loadConfig := func(cmd *cobra.Command) error {
		cfgFile := cfgPath
		if cfgFile == "" {
			cfgFile = cliconfig.DefaultConfigPath()
		}

		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if cfgFile != "" && cliconfig.FileExists(cfgFile) {
			fc, err := cliconfig.LoadFileConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return err
			}
		}

		// STUDYCTL_* override the file but not explicit flags
		if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
			return err
		}

		if err := cliconfig.LoadStudyInfo(&cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		lvl, _ := cliconfig.ParseLevel(cfg.LogLevel)
		log = log.Level(lvl)
		return nil
	}

	root := &cobra.Command{
		Use:     "studyctl",
		Short:   "Run an opt-in, time-boxed study inside its host application",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			log.Info().Interface("config", cfg).Msg("configuration")
			return run(cmd.Context(), cfg, log)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the study deadline, consent and current phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	optInCmd := &cobra.Command{
		Use:   "optin",
		Short: "Record the user's consent to take part",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			return setOptIn(cmd.Context(), cmd.OutOrStdout(), cfg, true)
		},
	}

	optOutCmd := &cobra.Command{
		Use:   "optout",
		Short: "Withdraw the user's consent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			return setOptIn(cmd.Context(), cmd.OutOrStdout(), cfg, false)
		},
	}

	root.AddCommand(statusCmd, optInCmd, optOutCmd)

	// Flags shared by every subcommand
	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.studyctl/config.toml)")
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory (default: $HOME/.studyctl/state)")
	pf.StringVar(&cfg.PrefsBackend, "prefs-backend", cfg.PrefsBackend, "preference store: file, badger or memory")
	pf.StringVar(&cfg.InstallPath, "install-path", cfg.InstallPath, "study install directory containing manifest.json")
	pf.StringVar(&cfg.StudyID, "study-id", cfg.StudyID, "study id (read from the manifest when empty)")
	pf.StringVar(&cfg.ExpirationKey, "expiration-key", cfg.ExpirationKey, "preference holding the study deadline")
	pf.StringVar(&cfg.OptInKey, "optin-key", cfg.OptInKey, "preference holding the user's consent")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	phasesFlag := cliconfig.FormatPhases(cfg.Phases)
	pf.StringVar(&phasesFlag, "phases", phasesFlag, "study phases as name=duration pairs")

	root.Flags().StringVar(&cfg.StorageDir, "storage-dir", cfg.StorageDir, "study storage directory (default: <state-dir>/storage)")
	root.Flags().StringVar(&cfg.UITopic, "ui-topic", cfg.UITopic, "notification that ends a deferred start")
	root.Flags().StringVar(&cfg.UISentinel, "ui-sentinel", cfg.UISentinel, "file whose creation publishes the ui topic (default: <state-dir>/ui-ready)")
	root.Flags().StringVar(&cfg.ResourceID, "resource-id", cfg.ResourceID, "stylesheet registered while the study runs")
	root.Flags().StringVar(&cfg.StartupReason, "reason", cfg.StartupReason, "startup reason (e.g. app-startup, addon-install)")
	root.Flags().StringVar(&cfg.ShutdownReason, "shutdown-reason", cfg.ShutdownReason, "shutdown reason used on SIGINT/SIGTERM")
	root.Flags().StringVar(&cfg.TrackingInput, "tracking-input", cfg.TrackingInput, "browsing activity feed (file path, or - for stdin)")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on (disabled when empty)")
	if err := root.Flags().MarkHidden("resource-id"); err != nil {
		log.Info().Err(err).Msg("failed to hide resource-id flag")
	}

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("phases") {
			return nil
		}
		phases, err := cliconfig.ParsePhases(phasesFlag)
		if err != nil {
			return fmt.Errorf("parse phases: %w", err)
		}
		cfg.Phases = phases
		return nil
	}

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("studyctl")
		os.Exit(1)
	}
}
