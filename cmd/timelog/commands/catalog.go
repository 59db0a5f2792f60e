package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newActivitiesCmd creates the activities command
func newActivitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activities",
		Short: "List the activities used in a timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			activities, err := backend.Catalog.ListActivities(cmd.Context(), a.opts.Timeline)
			if err != nil {
				return err
			}
			for _, activity := range activities {
				fmt.Fprintf(cmd.OutOrStdout(), "%s@%s\n", activity.Name, activity.CategoryName())
			}
			return nil
		},
	}
}

// newTagsCmd creates the tags command
func newTagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the tags used in a timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			tags, err := backend.Catalog.ListTags(cmd.Context(), a.opts.Timeline)
			if err != nil {
				return err
			}
			for _, tag := range tags {
				fmt.Fprintln(cmd.OutOrStdout(), tag.Name)
			}
			return nil
		},
	}
}
