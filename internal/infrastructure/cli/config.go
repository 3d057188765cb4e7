package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/config"
)

func (a *app) storageDir() string {
	if a.dir != "" {
		return a.dir
	}
	return config.DefaultDir()
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.storageDir()
			path := config.Path(dir)
			if _, err := os.Stat(path); err == nil && !force {
				return NewCLIError("config file already exists: "+path, "Use --force to overwrite it", nil)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return NewCLIError("cannot inspect config file", "", err)
			}
			if err := config.Save(path, config.Default(dir)); err != nil {
				return NewCLIError("failed to write config", "", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file, defaults and environment)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
