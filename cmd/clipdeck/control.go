package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipdeck/internal/control"
	"go.klb.dev/clipdeck/internal/ipc"
)

// withClient dials the daemon named by the addr or socket flag and runs fn.
func withClient(cmd *cobra.Command, v *viper.Viper, fn func(context.Context, *control.Client) error) error {
	target, dial := v.GetString("socket"), control.Dial
	if addr := v.GetString("addr"); addr != "" {
		target, dial = addr, control.DialTCP
	}
	conn, err := dial(target, v.GetString("token"))
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, control.NewClient(conn))
}

// requireDaemon fails fast with a readable error when nothing listens on the
// local socket. Remote addresses are left to the RPC to report.
func requireDaemon(v *viper.Viper) error {
	if v.GetString("addr") != "" {
		return nil
	}
	socket := v.GetString("socket")
	if !ipc.Listening(socket) {
		return fmt.Errorf("clipdeck daemon not running (socket %s); start it with \"clipdeck run\"", socket)
	}
	return nil
}

func newClientCmd(use, short string, args cobra.PositionalArgs, v *viper.Viper, run func(*cobra.Command, []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindViper(cmd, v); err != nil {
				return err
			}
			return requireDaemon(v)
		},
		RunE: run,
	}
	addControlFlags(cmd)
	return cmd
}

func newListCmd() *cobra.Command {
	v := viper.New()
	cmd := newClientCmd("list", "List history entries, newest unpinned after pins", cobra.NoArgs, v,
		func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *control.Client) error {
				entries, err := c.List(ctx)
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				printEntries(cmd.OutOrStdout(), entries)
				return nil
			})
		})
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printEntries(out io.Writer, entries []control.EntryInfo) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "History is empty.")
		return
	}
	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tPIN\tKIND\tAGE\tFORMATS\tPREVIEW\n")
	for _, e := range entries {
		pin := ""
		if e.Pinned {
			pin = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, pin, e.Kind, fmtAge(e.Created), strings.Join(e.Formats, ","), e.Preview)
	}
	_ = tw.Flush()
}

func newActionCmd(name, short, action string) *cobra.Command {
	v := viper.New()
	return newClientCmd(name+" ID", short, cobra.ExactArgs(1), v,
		func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *control.Client) error {
				if err := c.Perform(ctx, args[0], action); err != nil {
					return fmt.Errorf("%s: %w", action, err)
				}
				return nil
			})
		})
}

func newExportCmd() *cobra.Command {
	v := viper.New()
	cmd := newClientCmd("export ID", "Write an entry's content to stdout or a file", cobra.ExactArgs(1), v,
		func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *control.Client) error {
				contentType, data, err := c.Export(ctx, args[0])
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}
				return writeOutput(cmd.OutOrStdout(), v.GetString("output"), contentType, data)
			})
		})
	cmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newStatusCmd() *cobra.Command {
	v := viper.New()
	cmd := newClientCmd("status", "Show daemon status", cobra.NoArgs, v,
		func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *control.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), st)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 1, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "Version:\t%s\n", st.Version)
				fmt.Fprintf(tw, "Source:\t%s\n", st.Source)
				fmt.Fprintf(tw, "Socket:\t%s\n", v.GetString("socket"))
				fmt.Fprintf(tw, "Capture:\t%s\n", st.Capture)
				fmt.Fprintf(tw, "Entries:\t%d (%d pinned)\n", st.Entries, st.Pinned)
				fmt.Fprintf(tw, "Persisted:\t%d\n", st.Persisted)
				fmt.Fprintf(tw, "Uptime:\t%s\n", st.Uptime)
				return tw.Flush()
			})
		})
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newWatchCmd() *cobra.Command {
	v := viper.New()
	return newClientCmd("watch", "Stream history events until interrupted", cobra.NoArgs, v,
		func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, v, func(ctx context.Context, c *control.Client) error {
				out := cmd.OutOrStdout()
				return c.Watch(ctx, func(ev control.EventInfo) error {
					line := ev.Kind
					switch {
					case ev.Entry != nil:
						line += "\t" + ev.Entry.ID + "\t" + ev.Entry.Preview
					case ev.Pane != "":
						line += "\t" + ev.Pane
					}
					if ev.Action != "" {
						line += "\t" + ev.Action
					}
					if ev.Empty {
						line += "\t(empty)"
					}
					_, err := fmt.Fprintln(out, line)
					return err
				})
			})
		})
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput writes data to path, or to out when path is empty.
func writeOutput(out io.Writer, path, contentType string, data []byte) error {
	if path == "" {
		_, err := out.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d bytes (%s) to %s\n", len(data), contentType, path)
	return nil
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
