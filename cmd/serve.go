package cmd

import (
	"github.com/spf13/cobra"
)

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "serve",
		Short:       "Run the HTTP service",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{serviceAnnotation: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.served = true
			return c.app.Run(cmd.Context())
		},
	}
}
