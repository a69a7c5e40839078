package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

func init() {
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Write a report for caller-supplied candidates",
		Run:   runFinalize,
	}

	cmd.Flags().StringSliceP("symptom", "s", nil, "Symptom (repeatable)")
	cmd.Flags().StringArrayP("candidate", "c", nil, "Candidate as name=probability, best first (repeatable)")
	cmd.Flags().String("conversation", "", "Free-text conversation history")

	cmd.MarkFlagRequired("candidate")

	RootCmd.AddCommand(cmd)
}

func runFinalize(cmd *cobra.Command, args []string) {
	symptoms, _ := cmd.Flags().GetStringSlice("symptom")
	raw, _ := cmd.Flags().GetStringArray("candidate")
	conversation, _ := cmd.Flags().GetString("conversation")

	top, err := parseCandidates(raw)
	if err != nil {
		exitErr("candidates", err)
	}

	c, err := openClient(cmd.Context())
	if err != nil {
		exitErr("connect", err)
	}
	defer c.Close()

	ctx, cancel := callContext(cmd.Context())
	defer cancel()
	resp, err := c.Finalize(ctx, proto.FinalizeRequest{Symptoms: symptoms, TopDiseases: top, ConversationHistory: conversation})
	if err != nil {
		exitErr("finalize", err)
	}
	printReport(cmd.OutOrStdout(), resp.Report)
}

// parseCandidates reads "Name=probability" pairs. A missing probability is 0.
func parseCandidates(raw []string) ([]proto.Candidate, error) {
	out := make([]proto.Candidate, 0, len(raw))
	for _, r := range raw {
		name, prob, hasProb := strings.Cut(r, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("candidate %q has no name", r)
		}
		c := proto.Candidate{Name: name}
		if hasProb {
			p, err := strconv.ParseFloat(strings.TrimSpace(prob), 64)
			if err != nil {
				return nil, fmt.Errorf("candidate %q: %w", r, err)
			}
			c.Probability = p
		}
		out = append(out, c)
	}
	return out, nil
}
