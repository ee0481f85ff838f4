package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"dwh/internal/cluster"
)

const deletePrompt = "ARE YOU SURE (Y,n)"

// newManager is replaced in tests.
var newManager = func(ctx context.Context, a *app) (*cluster.Manager, error) {
	awsCfg, err := cluster.LoadAWSConfig(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	return cluster.NewAWSManager(awsCfg, cluster.SpecFromConfig(a.cfg), cluster.WithLogger(a.log)), nil
}

func newCreateClusterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-cluster",
		Short: "Create the IAM role and the Redshift cluster, then wait until it is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			defer a.teardown()

			ctx := cmd.Context()
			mgr, err := newManager(ctx, a)
			if err != nil {
				return err
			}
			d, err := mgr.Create(ctx)
			if err != nil {
				return err
			}
			printDescription(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func newDeleteClusterCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-cluster",
		Short: "Delete the Redshift cluster without a final snapshot and remove its IAM role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			defer a.teardown()

			ctx := cmd.Context()
			mgr, err := newManager(ctx, a)
			if err != nil {
				return err
			}
			d, err := mgr.Describe(ctx)
			if err != nil {
				return err
			}

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleting cluster %s (%s, endpoint %s:%d) and role %s.\n",
					d.Identifier, d.Status, d.Endpoint, d.Port, a.cfg.IAMRole.Name)
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), deletePrompt) {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			return mgr.Delete(ctx)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Describe the cluster: status, endpoint and role ARN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			defer a.teardown()

			ctx := cmd.Context()
			mgr, err := newManager(ctx, a)
			if err != nil {
				return err
			}
			d, err := mgr.Describe(ctx)
			if err != nil {
				return err
			}
			printDescription(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

// confirm asks prompt on out and reads one line from in. Only an exact "Y"
// proceeds.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == "Y"
}

func printDescription(w io.Writer, d cluster.Description) {
	fmt.Fprintf(w, "cluster:    %s\n", d.Identifier)
	fmt.Fprintf(w, "status:     %s\n", d.Status)
	fmt.Fprintf(w, "endpoint:   %s:%d\n", d.Endpoint, d.Port)
	fmt.Fprintf(w, "role_arn:   %s\n", d.RoleARN())
	fmt.Fprintf(w, "vpc_id:     %s\n", d.VpcID)
	fmt.Fprintf(w, "nodes:      %d x %s\n", d.NodeCount, d.NodeType)
	fmt.Fprintf(w, "db:         %s (user %s)\n", d.DBName, d.MasterUsername)
}
