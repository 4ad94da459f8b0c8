package cli

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI profiles in ~/.talk2data/config.yaml",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetProfileCmd())
	cmd.AddCommand(newConfigUseProfileCmd())
	cmd.AddCommand(newConfigSetAPIKeyCmd())
	return cmd
}

// maskSecret keeps the last four characters of a secret.
func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show profiles (API keys are masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				return err
			}
			masked := UserConfig{CurrentProfile: cfg.CurrentProfile, Profiles: make(map[string]Profile, len(cfg.Profiles))}
			for name, p := range cfg.Profiles {
				p.APIKey = maskSecret(p.APIKey)
				masked.Profiles[name] = p
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), masked)
			}
			names := make([]string, 0, len(masked.Profiles))
			for name := range masked.Profiles {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				p := masked.Profiles[name]
				current := ""
				if name == masked.CurrentProfile {
					current = "*"
				}
				rows = append(rows, []string{current, name, p.SchemaDir, p.User, p.Model, p.BaseURL, p.APIKey})
			}
			PrintTable(cmd.OutOrStdout(), []string{"current", "name", "schema-dir", "user", "model", "base-url", "api-key"}, rows)
			return nil
		},
	}
}

func newConfigSetProfileCmd() *cobra.Command {
	var p Profile

	cmd := &cobra.Command{
		Use:     "set-profile NAME",
		Short:   "Create or update a profile",
		Example: `  talk2data config set-profile work --schema-dir /srv/schemas --model gpt-4o`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(p.Output); err != nil {
				return err
			}
			cfg, err := LoadUserConfig()
			if err != nil {
				return err
			}
			existing := cfg.Profiles[args[0]]
			fields := map[string]*string{
				"schema-dir":     &existing.SchemaDir,
				"schema-user":    &existing.User,
				"default-output": &existing.Output,
				"model":          &existing.Model,
				"base-url":       &existing.BaseURL,
			}
			// Visit only walks flags that were set on the command line.
			cmd.LocalFlags().Visit(func(f *pflag.Flag) {
				if dst, ok := fields[f.Name]; ok {
					*dst = f.Value.String()
				}
			})
			cfg.Profiles[args[0]] = existing
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Profile %q saved\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&p.SchemaDir, "schema-dir", "", "Schema directory")
	cmd.Flags().StringVar(&p.User, "schema-user", "", "Schema owner")
	cmd.Flags().StringVar(&p.Output, "default-output", "", "Default output format (table, json)")
	cmd.Flags().StringVar(&p.Model, "model", "", "Model name")
	cmd.Flags().StringVar(&p.BaseURL, "base-url", "", "OpenAI-compatible base URL")
	return cmd
}

func newConfigUseProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-profile NAME",
		Short: "Switch the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				return err
			}
			if _, ok := cfg.Profiles[args[0]]; !ok {
				return fmt.Errorf("profile %q not found", args[0])
			}
			cfg.CurrentProfile = args[0]
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %q\n", args[0])
			return nil
		},
	}
}

func newConfigSetAPIKeyCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "set-api-key",
		Short: "Store an API key in a profile",
		Long:  "Reads the key without echo when stdin is a terminal, otherwise reads one line from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := readSecret(cmd)
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty API key")
			}
			cfg, err := LoadUserConfig()
			if err != nil {
				return err
			}
			if profile == "" {
				profile = cfg.CurrentProfile
			}
			p := cfg.Profiles[profile]
			p.APIKey = key
			cfg.Profiles[profile] = p
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "API key stored in profile %q\n", profile)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile-name", "", "Profile to update (default: current profile)")
	return cmd
}

func readSecret(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read API key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
