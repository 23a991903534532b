package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"auditstore/internal/model"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func userMaps(users []*model.User) []map[string]any {
	out := make([]map[string]any, len(users))
	for i, u := range users {
		out[i] = u.ToMap()
	}
	return out
}

func historyMaps(entries []*model.History) []map[string]any {
	out := make([]map[string]any, len(entries))
	for i, h := range entries {
		out[i] = h.ToMap()
	}
	return out
}

func printUser(w io.Writer, u *model.User) {
	id, _ := u.ID()
	fmt.Fprintf(w, "ID:       %d\n", id)
	fmt.Fprintf(w, "Name:     %s\n", u.Name())
	fmt.Fprintf(w, "Email:    %s\n", u.Email())
	if created, ok := u.Created(); ok {
		fmt.Fprintf(w, "Created:  %s\n", created.Format("2006-01-02 15:04:05"))
	}
	if d := u.Deleted(); d != nil {
		fmt.Fprintf(w, "Deleted:  %s\n", d.Format("2006-01-02 15:04:05"))
	}
	if n := u.Notes(); n != nil {
		fmt.Fprintf(w, "Notes:    %s\n", *n)
	}
}

func printUserList(w io.Writer, users []*model.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tDELETED")
	for _, u := range users {
		id, _ := u.ID()
		deleted := ""
		if d := u.Deleted(); d != nil {
			deleted = d.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", id, u.Name(), u.Email(), deleted)
	}
	tw.Flush()
}

func printHistory(w io.Writer, entries []*model.History) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "History:")
	for _, h := range entries {
		ts := ""
		if c, ok := h.Created(); ok {
			ts = c.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "  [%s] %s\n", ts, h.ChangedData())
	}
}
