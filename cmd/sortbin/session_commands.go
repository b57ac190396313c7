package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sortbin/internal/api"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Drive the live disposal session",
	}
	sessionCmd.AddCommand(newSessionStartCommand(ctx))
	sessionCmd.AddCommand(newSessionIdentifyCommand(ctx))
	return sessionCmd
}

func newSessionStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a new disposal session, discarding any live one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				s, err := client.StartSession(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s started; waiting for identity\n", s.SessionID)
				return nil
			})
		},
	}
}

func newSessionIdentifyCommand(ctx *commandContext) *cobra.Command {
	var name string
	var id int64
	cmd := &cobra.Command{
		Use:   "identify [utterance...]",
		Short: "Identify the speaker from text or an explicit --name",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.IdentityRequest{Text: strings.Join(args, " ")}
			if strings.TrimSpace(name) != "" {
				req = api.IdentityRequest{Name: name}
				if cmd.Flags().Changed("id") {
					req.ID = &id
				}
			}
			if strings.TrimSpace(req.Text) == "" && req.Name == "" {
				return fmt.Errorf("provide an utterance or --name")
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.SubmitIdentity(cmd.Context(), req)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Unknown {
					fmt.Fprintln(stdout, "Speaker not recognized; the bin will refuse images until identified")
					return nil
				}
				user := resp.Session.User
				if user == nil {
					fmt.Fprintf(stdout, "Identified %s\n", resp.Name)
					return nil
				}
				fmt.Fprintf(stdout, "Identified %s (ID %d, score %s); waiting for image\n", user.Name, user.ID, user.ScoreDisplay)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Identify as this user without calling the resolver")
	cmd.Flags().Int64Var(&id, "id", 0, "User ID to assign when --name creates a new user")
	return cmd
}
