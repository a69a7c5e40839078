package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/logger"
)

type echoReq struct {
	Word string `json:"word"`
}

type echoResp struct {
	Word      string `json:"word"`
	RequestID string `json:"request_id"`
}

func startServer(t *testing.T) *Client {
	t.Helper()
	s := NewServer()
	s.Register("Echo.Say", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in echoReq
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		return echoResp{Word: in.Word, RequestID: logger.RequestID(ctx)}, nil
	})
	s.Register("Echo.Reject", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return nil, apperrors.ContractViolation("Expected %d Q&A pairs in history, got %d", 2, 1)
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)

	c, err := Dial(s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallRoundTrip(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out echoResp
	if err := c.Call(ctx, "Echo.Say", echoReq{Word: "fever"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Word != "fever" {
		t.Fatalf("got %q", out.Word)
	}
	if out.RequestID != "rpc-1" {
		t.Fatalf("expected request id propagated, got %q", out.RequestID)
	}
}

func TestCallPreservesErrorKind(t *testing.T) {
	c := startServer(t)
	err := c.Call(context.Background(), "Echo.Reject", echoReq{}, nil)
	if !errors.Is(err, apperrors.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if apperrors.Message(err) != "Expected 2 Q&A pairs in history, got 1" {
		t.Fatalf("unexpected message %q", apperrors.Message(err))
	}
}

func TestCallUnknownMethod(t *testing.T) {
	c := startServer(t)
	err := c.Call(context.Background(), "Nope.Missing", nil, nil)
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
