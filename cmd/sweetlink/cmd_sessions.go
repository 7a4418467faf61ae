package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List connected sessions",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	c, err := relayClient(cmd.Context())
	if err != nil {
		return err
	}

	summaries, err := c.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No sessions connected.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODENAME\tSESSION\tSTATE\tLAST SEEN\tURL")
	for _, s := range summaries {
		state := string(s.SocketState)
		if !s.Live {
			state += " (stale)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.Codename, shortID(s.SessionID), state,
			time.Since(s.LastSeenAt).Truncate(time.Second), s.URL)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
