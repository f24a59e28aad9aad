package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipdeck/internal/links"
)

func newLinksCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "links [TEXT...]",
		Short: "Extract and classify links from text",
		Long: `Extracts link candidates from the arguments, or from stdin when none are
given, and prints each with its validity and type flags.

  echo "see https://example.com/a.png" | clipdeck links`,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(v)
			text := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(bufio.NewReader(cmd.InOrStdin()))
				if err != nil {
					return err
				}
				text = string(b)
			}

			var domains links.DomainValidator
			if !v.GetBool("offline") {
				domains = links.NewDNSValidator(v.GetDuration("dns-timeout"))
			}
			p := links.NewParser(domains, links.ExtensionInterpreter{})
			return printLinks(cmd, p, text, v.GetBool("valid-only"))
		},
	}

	f := cmd.Flags()
	f.Duration("dns-timeout", 0, "per-domain lookup timeout (0 uses the default)")
	f.Bool("offline", false, "skip domain resolution; any well-formed link is valid")
	f.Bool("valid-only", false, "print only links that validate")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}

func printLinks(cmd *cobra.Command, p *links.Parser, text string, validOnly bool) error {
	ctx := cmd.Context()
	cands := links.Extract(text)
	valid := make(map[string]bool, len(cands))
	for _, l := range p.ValidLinks(ctx, text) {
		valid[l] = true
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINK\tVALID\tTYPE")
	for _, c := range cands {
		if validOnly && !valid[c] {
			continue
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", c, valid[c], p.LinkType(c))
	}
	return tw.Flush()
}
