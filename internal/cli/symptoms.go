package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "symptoms",
		Short: "List the canonical symptom vocabulary",
		Run:   runSymptoms,
	}

	cmd.Flags().String("grep", "", "Only list symptoms containing this substring")

	RootCmd.AddCommand(cmd)
}

func runSymptoms(cmd *cobra.Command, args []string) {
	filter, _ := cmd.Flags().GetString("grep")

	c, err := openClient(cmd.Context())
	if err != nil {
		exitErr("connect", err)
	}
	defer c.Close()

	ctx, cancel := callContext(cmd.Context())
	defer cancel()
	resp, err := c.SymptomList(ctx)
	if err != nil {
		exitErr("symptoms", err)
	}

	if filter != "" {
		kept := resp.Symptoms[:0]
		for _, s := range resp.Symptoms {
			if strings.Contains(s, strings.ToLower(filter)) {
				kept = append(kept, s)
			}
		}
		resp.Symptoms = kept
		resp.Count = len(kept)
	}

	out := cmd.OutOrStdout()
	if formatFlag == "json" {
		printJSON(out, resp)
		return
	}
	for _, s := range resp.Symptoms {
		fmt.Fprintln(out, s)
	}
}
