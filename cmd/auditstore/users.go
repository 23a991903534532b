package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"auditstore/internal/model"
	"auditstore/internal/repository"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect and manage users",
}

var (
	listLimit          int
	listOffset         int
	listEmailLike      string
	listIncludeDeleted bool
	listSort           []string
)

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := buildUserQuery(listEmailLike, listIncludeDeleted, listSort, listLimit, listOffset)
		if err != nil {
			return err
		}
		users, err := env.users.List(cmd.Context(), q)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), userMaps(users))
		}
		printUserList(cmd.OutOrStdout(), users)
		return nil
	},
}

var (
	showHistory int
	showReload  bool
)

var usersShowCmd = &cobra.Command{
	Use:   "show <id|email>",
	Short: "Show one user and its latest changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		u, err := getUser(cmd, args[0], showReload)
		if err != nil {
			return err
		}
		id, _ := u.ID()

		var entries []*model.History
		if showHistory > 0 {
			entries, err = env.history.ListByEntity(ctx, u.Kind(), id, repository.PageQuery{Limit: showHistory})
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"user":    u.ToMap(),
				"history": historyMaps(entries),
			})
		}
		printUser(cmd.OutOrStdout(), u)
		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

var (
	createName  string
	createEmail string
	createNotes string
)

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u := model.NewUser(map[string]any{
			model.UserName:  createName,
			model.UserEmail: createEmail,
		})
		if cmd.Flags().Changed("notes") {
			u.SetNotes(&createNotes)
		}
		if _, err := env.users.Save(cmd.Context(), u); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), u.ToMap())
		}
		printUser(cmd.OutOrStdout(), u)
		return nil
	},
}

var deleteHard bool

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Soft delete a user, or remove it with --hard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		ok, err := env.users.DeleteByID(cmd.Context(), id, !deleteHard)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %d was not deleted", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %d\n", id)
		return nil
	},
}

func init() {
	usersListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of users (default 25)")
	usersListCmd.Flags().IntVar(&listOffset, "offset", 0, "number of users to skip")
	usersListCmd.Flags().StringVar(&listEmailLike, "email-like", "", "SQL LIKE pattern the e-mail must match")
	usersListCmd.Flags().BoolVar(&listIncludeDeleted, "include-deleted", false, "include soft deleted users")
	usersListCmd.Flags().StringSliceVar(&listSort, "sort", nil, "sort terms as field[:asc|desc], applied in order")

	usersShowCmd.Flags().IntVar(&showHistory, "history", 5, "number of history entries to show")
	usersShowCmd.Flags().BoolVar(&showReload, "reload", false, "bypass the identity map")

	usersCreateCmd.Flags().StringVar(&createName, "name", "", "user name")
	usersCreateCmd.Flags().StringVar(&createEmail, "email", "", "e-mail address")
	usersCreateCmd.Flags().StringVar(&createNotes, "notes", "", "free-form notes")
	_ = usersCreateCmd.MarkFlagRequired("name")
	_ = usersCreateCmd.MarkFlagRequired("email")

	usersDeleteCmd.Flags().BoolVar(&deleteHard, "hard", false, "remove the row instead of stamping deleted")

	usersCmd.AddCommand(usersListCmd, usersShowCmd, usersCreateCmd, usersDeleteCmd)
}

// getUser resolves ref as an id when it is numeric and as an e-mail otherwise.
func getUser(cmd *cobra.Command, ref string, reload bool) (*model.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return env.users.GetByID(cmd.Context(), id, reload)
	}
	return env.users.GetByEmail(cmd.Context(), ref, reload)
}

func buildUserQuery(emailLike string, includeDeleted bool, sort []string, limit, offset int) (repository.Query, error) {
	q := repository.Query{Limit: limit, Offset: offset}
	if emailLike != "" {
		q.Where = append(q.Where, repository.Where(model.UserEmail, "LIKE", emailLike))
	}
	if !includeDeleted {
		q.Where = append(q.Where, repository.Where(model.UserDeleted, "IS", nil))
	}
	for _, term := range sort {
		field, dir, _ := strings.Cut(term, ":")
		o := repository.Order{Field: field, Direction: repository.DESC}
		if strings.EqualFold(dir, "asc") || dir == "" {
			o.Direction = repository.ASC
		}
		q.Order = append(q.Order, o)
	}
	if limit < 0 || offset < 0 {
		return q, fmt.Errorf("limit and offset must not be negative")
	}
	return q, nil
}
