package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sortbin/internal/api"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "List ledger users and their scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				users, err := client.Users(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, users)
				}
				stdout := cmd.OutOrStdout()
				if len(users) == 0 {
					fmt.Fprintln(stdout, "No users yet")
					return nil
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"Name", "ID", "Score", "Disposals", "Reminders"},
					userRows(users),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	usersCmd.Flags().BoolVar(&asJSON, "json", false, "Print users as JSON")
	usersCmd.AddCommand(newUserShowCommand(ctx))
	return usersCmd
}

func newUserShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one user with recent disposals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				detail, err := client.User(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, detail)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprint(stdout, renderTable(
					[]string{"Name", "ID", "Score", "Disposals", "Reminders"},
					userRows([]api.User{detail.User}),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				if len(detail.History) == 0 {
					fmt.Fprintln(stdout, "No disposals recorded")
					return nil
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"When", "Item", "Category", "Bin", "Result", "Score"},
					historyRows(detail.History),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the user as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of recent disposals to show")
	return cmd
}

func userRows(users []api.User) [][]string {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		reminders := strings.Join(u.ReminderItems, ", ")
		if reminders == "" {
			reminders = "-"
		}
		rows = append(rows, []string{
			u.Name,
			strconv.FormatInt(u.ID, 10),
			u.ScoreDisplay,
			strconv.Itoa(u.CompleteTimes),
			reminders,
		})
	}
	return rows
}

func historyRows(history []api.Disposal) [][]string {
	rows := make([][]string, 0, len(history))
	for _, d := range history {
		result := "incorrect"
		if d.Correct {
			result = "correct"
		}
		rows = append(rows, []string{
			d.CreatedAt,
			d.Item,
			d.Category,
			strconv.Itoa(d.StatusCode),
			result,
			strconv.FormatFloat(d.Score, 'f', 1, 64),
		})
	}
	return rows
}
