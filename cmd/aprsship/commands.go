package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/aprsship/internal/adapters/aprs"
	"github.com/bft-labs/aprsship/internal/adapters/fs"
	"github.com/bft-labs/aprsship/internal/adapters/sqlite"
	"github.com/bft-labs/aprsship/internal/domain"
)

func newPasscodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passcode CALLSIGN",
		Short: "Print the APRS-IS passcode for a callsign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), aprs.Passcode(args[0]))
			return err
		},
	}
}

func newStatusCmd() *cobra.Command {
	var stateDir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the last status snapshot written by a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				return fmt.Errorf("--state-dir is required")
			}
			repo := fs.NewStatusFileRepository(stateDir)
			st, err := repo.Load(cmd.Context())
			if err != nil {
				return err
			}
			if st.IsEmpty() {
				return fmt.Errorf("no status at %s", repo.Path())
			}
			return printStatus(cmd.OutOrStdout(), st, time.Now())
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "directory the running instance writes status.json to")
	return cmd
}

func newRecentCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the newest frames in a SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			store, err := sqlite.Open(cmd.Context(), sqlite.Config{Path: dbPath, PoolSize: 1})
			if err != nil {
				return err
			}
			defer store.Close()

			total, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			frames, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printFrames(cmd.OutOrStdout(), total, frames)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "aprs.sqlite", "SQLite database file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of frames to print")
	return cmd
}

func printFrames(w io.Writer, total int64, frames []domain.Frame) error {
	if _, err := fmt.Fprintf(w, "%d frames stored, newest %d:\n", total, len(frames)); err != nil {
		return err
	}
	for _, f := range frames {
		header := f.Source + ">" + f.Destination
		if len(f.Path) > 0 {
			header += "," + strings.Join(f.Path, ",")
		}
		if _, err := fmt.Fprintf(w, "%s  %-9s %s:%s\n",
			f.ReceivedAt.Format(time.RFC3339), f.Kind, header, f.Payload); err != nil {
			return err
		}
	}
	return nil
}

func printStatus(w io.Writer, st domain.Status, now time.Time) error {
	c := st.Counters
	_, err := fmt.Fprintf(w, `server:          %s
callsign:        %s
connection:      %s
last connected:  %s
last line:       %s
updated:         %s (%s ago)

lines received:  %d (%d comments, %d overflowed)
decoded:         %d (%d failed)
duplicates:      %d
persisted:       %d (%d dropped)
reconnects:      %d
stalls:          %d
`,
		st.Server, st.Callsign, st.Connection,
		formatTime(st.LastConnectedAt), formatTime(st.LastLineAt),
		formatTime(st.UpdatedAt), now.Sub(st.UpdatedAt).Truncate(time.Second),
		c.LinesReceived, c.Comments, c.Overflows,
		c.Decoded, c.DecodeFailures,
		c.Duplicates,
		c.Persisted, c.StorageDropped,
		c.Reconnects,
		c.Stalls,
	)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
