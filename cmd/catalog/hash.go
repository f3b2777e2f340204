package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/almecha/GlucoseIoT/internal/core"
)

func newHashPasswordCmd(opts *rootOptions) *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cost == 0 {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				cost = cfg.Security.BcryptCost
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password on stdin")
			}
			password := strings.TrimRight(line, "\r\n")
			hash, err := core.NewPasswordHasher(cost).Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default: security.bcrypt_cost)")
	return cmd
}
