// Package cli implements the talk2data command-line interface. Commands run
// locally against a schema directory; only generate and query call the
// language model.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"talk2data/internal/config"
	"talk2data/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// settings holds the values resolved from flags, environment and profile.
type settings struct {
	output    string
	schemaDir string
	user      string
	profile   string
	logLevel  string

	apiKey  string
	baseURL string
	model   string

	logger *slog.Logger
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if getOutputFormat(rootCmd) == "json" {
			errObj := map[string]interface{}{"error": err.Error()}
			if code := errorCode(err); code != "" {
				errObj["code"] = code
			}
			_ = PrintJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	s := &settings{}

	rootCmd := &cobra.Command{
		Use:           "talk2data",
		Short:         "Ask questions about star-schema data in plain language",
		Long:          "Generate validated SQL from natural-language questions over stored schema documents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.resolve(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&s.output, "output", "o", "table", "Output format (table, json)")
	flags.StringVar(&s.schemaDir, "schema-dir", "", "Directory holding schema documents (default ~/.talk2data/schemas)")
	flags.StringVar(&s.user, "user", domain.DefaultLocalUser, "User whose schemas are used")
	flags.StringVarP(&s.profile, "profile", "p", "", "Config profile to use")
	flags.StringVar(&s.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newGenerateCmd(s))
	rootCmd.AddCommand(newQueryCmd(s))
	rootCmd.AddCommand(newValidateCmd(s))
	rootCmd.AddCommand(newJoinPathCmd(s))
	rootCmd.AddCommand(newSchemaCmd(s))
	rootCmd.AddCommand(newDatesCmd(s))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())
	return rootCmd
}

// resolve applies precedence flag > env > profile > default.
func (s *settings) resolve(cmd *cobra.Command) error {
	cfg, err := LoadUserConfig()
	if err != nil {
		return err
	}
	p, err := cfg.ActiveProfile(s.profile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	pick := func(flag string, dst *string, env, fromProfile string) {
		if flags.Changed(flag) {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		} else if fromProfile != "" {
			*dst = fromProfile
		}
	}
	pick("output", &s.output, "TALK2DATA_OUTPUT", p.Output)
	pick("schema-dir", &s.schemaDir, "TALK2DATA_SCHEMA_DIR", p.SchemaDir)
	pick("user", &s.user, "TALK2DATA_USER", p.User)
	if err := validateOutputFormat(s.output); err != nil {
		return err
	}
	if s.schemaDir == "" {
		s.schemaDir = filepath.Join(ConfigDir(), "schemas")
	}

	s.apiKey = firstNonEmpty(os.Getenv("OPENAI_API_KEY"), p.APIKey)
	s.baseURL = firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), p.BaseURL)
	s.model = firstNonEmpty(os.Getenv("OPENAI_MODEL"), p.Model)

	s.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: config.ParseLevel(s.logLevel)}))
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{"version": version, "commit": commit})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "talk2data version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
