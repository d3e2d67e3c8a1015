package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions holds global flags and the config they were merged with.
type rootOptions struct {
	configPath string
	verbose    bool
	generics   bool
	cfg        *config
	log        *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{cfg: &config{LogLevel: defaultLogLevel}, log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "ildump",
		Short: "Read CLI metadata from .NET assemblies",
		Long: `ildump decodes the metadata tables of a .NET assembly into a type graph
and prints type definitions, members and generic instantiations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			if !cmd.Flags().Changed("generics") && cfg.GenericsTarget != nil {
				opts.generics = *cfg.GenericsTarget
			}
			log, err := newLogger(cfg.LogLevel, opts.verbose)
			if err != nil {
				return err
			}
			opts.log = log
			installLogger(log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.log.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&opts.generics, "generics", true, "specialize as the generics target")

	cmd.AddCommand(newTypesCommand(opts))
	cmd.AddCommand(newMembersCommand(opts))
	cmd.AddCommand(newInstantiateCommand(opts))
	cmd.AddCommand(newReferencesCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	return cmd
}
