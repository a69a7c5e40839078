// Package cli implements the symptomctl commands. Every command talks to a
// running diagnosis service over the internal RPC port.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/rpc"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

var (
	rpcAddr     string
	formatFlag  string
	callTimeout time.Duration
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "symptomctl",
	Short: "Diagnose symptoms against a running diagnosis service",
	Long:  "symptomctl sends symptoms to the diagnosis service, answers up to three narrowing questions interactively and prints the final report.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&rpcAddr, "addr", "a", "", "RPC address (default: $SD_RPC_ADDR or localhost:9000)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
	RootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 60*time.Second, "Per-call timeout")
}

// client is the RPC surface the commands use. *rpc.Client satisfies it.
type client interface {
	Diagnose(ctx context.Context, req proto.DiagnoseRequest) (proto.DiagnoseResponse, error)
	Ask(ctx context.Context, req proto.AskRequest) (proto.AskResponse, error)
	Finalize(ctx context.Context, req proto.FinalizeRequest) (proto.FinalizeResponse, error)
	SymptomList(ctx context.Context) (proto.SymptomsResponse, error)
	Close() error
}

var dial = func(ctx context.Context, addr string) (client, error) {
	return rpc.Dial(ctx, addr)
}

func getAddr() string {
	if rpcAddr != "" {
		return rpcAddr
	}
	if env := os.Getenv("SD_RPC_ADDR"); env != "" {
		return env
	}
	return "localhost:9000"
}

func openClient(ctx context.Context) (client, error) {
	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return dial(dctx, getAddr())
}

func callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, callTimeout)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
