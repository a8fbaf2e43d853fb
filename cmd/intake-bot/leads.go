// ABOUTME: Operator commands that read or repair the SQLite store directly
// ABOUTME: leads prints the ledger as a table, reset restarts one conversation

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/intake-bot/internal/store"
)

const defaultLeadsLimit = 20

type storeArgs struct {
	dbPath string
	userID int64
	limit  int
}

// parseStoreArgs reads --db, --user and --limit in either "--flag value" or
// "--flag=value" form.
func parseStoreArgs(args []string) (storeArgs, error) {
	out := storeArgs{limit: defaultLeadsLimit}

	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--db", "--user", "--limit":
		default:
			return out, fmt.Errorf("unknown argument: %s", args[i])
		}
		if !hasValue {
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a value", name)
			}
			i++
			value = args[i]
		}

		switch name {
		case "--db":
			out.dbPath = value
		case "--user":
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil || id <= 0 {
				return out, fmt.Errorf("--user must be a positive number: %q", value)
			}
			out.userID = id
		case "--limit":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return out, fmt.Errorf("--limit must be a non-negative number: %q", value)
			}
			out.limit = n
		}
	}
	return out, nil
}

// openStore opens the database named by --db, or the configured one.
func openStore(a storeArgs) (store.Store, error) {
	path := a.dbPath
	if path == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Database.Path
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func runLeads(ctx context.Context, args []string) error {
	a, err := parseStoreArgs(args)
	if err != nil {
		return err
	}

	s, err := openStore(a)
	if err != nil {
		return err
	}
	defer s.Close()

	leads, err := s.ListLeads(ctx, store.LeadFilter{UserID: a.userID, Limit: a.limit})
	if err != nil {
		return fmt.Errorf("listing leads: %w", err)
	}

	printLeads(os.Stdout, leads)
	return nil
}

func printLeads(out io.Writer, leads []*store.Lead) {
	if len(leads) == 0 {
		fmt.Fprintln(out, "No leads recorded")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	cyan := color.New(color.FgCyan)
	cyan.Fprintln(w, "CREATED\tUSER\tTOPIC\tPHONE\tTIME\tDETAILS")

	for _, l := range leads {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			l.CreatedAt.Local().Format("2006-01-02 15:04"),
			l.UserID,
			truncate(l.Topic, 40),
			l.Phone,
			truncate(l.TimePref, 20),
			truncate(formatData(l.Data), 60),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d lead(s)\n", len(leads))
}

// formatData renders answers as key=value pairs in key order.
func formatData(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+data[k])
	}
	return strings.Join(parts, " ")
}

func runReset(ctx context.Context, args []string) error {
	a, err := parseStoreArgs(args)
	if err != nil {
		return err
	}
	if a.userID == 0 {
		return fmt.Errorf("usage: intake-bot reset --user ID [--db PATH]")
	}

	s, err := openStore(a)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ResetConversation(ctx, a.userID); err != nil {
		return fmt.Errorf("resetting conversation: %w", err)
	}

	color.New(color.FgGreen).Print("✓ ")
	fmt.Printf("Conversation for user %d reset to %s\n", a.userID, store.InitialState)
	return nil
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
