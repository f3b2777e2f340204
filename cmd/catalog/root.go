package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/almecha/GlucoseIoT/internal/config"
	"github.com/almecha/GlucoseIoT/internal/core"
)

type rootOptions struct {
	configPath string
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "catalog",
		Short:         "GlucoseIoT resource catalog",
		SilenceUsage:  true,
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to catalog.yaml (default: search ., ./config, /etc/glucoseiot)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newHashPasswordCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

// catalogDefaults maps the catalog section onto the metadata written into a
// fresh document.
func catalogDefaults(cfg config.CatalogConfig) core.Metadata {
	return core.Metadata{
		CatalogURL:    cfg.URL,
		Broker:        cfg.BrokerDefaults(),
		ProjectOwners: append([]string{}, cfg.ProjectOwners...),
		ProjectName:   cfg.ProjectName,
	}
}
