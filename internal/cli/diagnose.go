package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/narrowing"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

func init() {
	cmd := &cobra.Command{
		Use:   "diagnose [symptom...]",
		Short: "Diagnose a set of symptoms",
		Long:  "Diagnose sends the symptoms to the engine. When confidence is below the gate, the narrowing questions are asked on stdin unless --no-interactive is set.",
		Run:   runDiagnose,
	}

	cmd.Flags().StringSliceP("symptom", "s", nil, "Symptom (repeatable, or comma separated)")
	cmd.Flags().String("history", "", "Medical history passed to the report as context")
	cmd.Flags().String("medications", "", "Current medications passed to the report as context")
	cmd.Flags().Bool("no-interactive", false, "Print the first question instead of asking it")

	RootCmd.AddCommand(cmd)
}

func runDiagnose(cmd *cobra.Command, args []string) {
	flagged, _ := cmd.Flags().GetStringSlice("symptom")
	history, _ := cmd.Flags().GetString("history")
	medications, _ := cmd.Flags().GetString("medications")
	noInteractive, _ := cmd.Flags().GetBool("no-interactive")

	symptoms := append(append([]string{}, args...), flagged...)
	if len(symptoms) == 0 {
		exitErr("diagnose", errors.New("at least one symptom is required"))
	}

	c, err := openClient(cmd.Context())
	if err != nil {
		exitErr("connect", err)
	}
	defer c.Close()

	ctx, cancel := callContext(cmd.Context())
	defer cancel()
	resp, err := c.Diagnose(ctx, proto.DiagnoseRequest{Symptoms: symptoms, History: history, Medications: medications})
	if err != nil {
		exitErr("diagnose", err)
	}

	out := cmd.OutOrStdout()
	if formatFlag == "json" && (noInteractive || resp.Action != proto.ActionNeedsNarrowing) {
		printJSON(out, resp)
		return
	}

	switch resp.Action {
	case proto.ActionNoSymptomsMatched:
		fmt.Fprintln(out, "None of the symptoms matched the vocabulary. Run 'symptomctl symptoms' to list known symptoms.")
	case proto.ActionDirectReport:
		fmt.Fprintf(out, "Confidence %.1f%%\n", resp.Confidence)
		printReport(out, resp.Report)
	case proto.ActionNeedsNarrowing:
		fmt.Fprintf(out, "Confidence %.1f%% is below the gate. Candidates:\n", resp.Confidence)
		printCandidates(out, resp.TopDiseases)
		if noInteractive {
			fmt.Fprintf(out, "Q%d: %s\n", resp.QuestionNumber, resp.Question)
			return
		}
		report, err := narrow(cmd.Context(), c, cmd.InOrStdin(), out, resp)
		if err != nil {
			exitErr("narrowing", err)
		}
		printReport(out, report)
	}
}

// narrow asks each narrowing question on in and replays the growing history
// until the service returns a report.
func narrow(ctx context.Context, c client, in io.Reader, out io.Writer, first proto.DiagnoseResponse) (*proto.Report, error) {
	scanner := bufio.NewScanner(in)
	var history []proto.QAPair
	question, number := first.Question, first.QuestionNumber

	for len(history) < narrowing.MaxRounds {
		fmt.Fprintf(out, "Q%d: %s\n> ", number, question)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.ErrUnexpectedEOF
		}
		history = append(history, proto.QAPair{Question: question, Answer: strings.TrimSpace(scanner.Text())})

		cctx, cancel := callContext(ctx)
		resp, err := c.Ask(cctx, proto.AskRequest{
			Symptoms:       first.MatchedSymptoms,
			TopDiseases:    first.TopDiseases,
			QuestionNumber: number,
			QAHistory:      history,
		})
		cancel()
		if err != nil {
			return nil, err
		}
		if resp.Action == proto.ActionDirectReport {
			return resp.Report, nil
		}
		question, number = resp.Question, resp.QuestionNumber
	}
	return nil, fmt.Errorf("no report after %d questions", narrowing.MaxRounds)
}
