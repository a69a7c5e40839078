package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

type fakeService struct{}

func (fakeService) Diagnose(_ context.Context, req proto.DiagnoseRequest) (proto.DiagnoseResponse, error) {
	if len(req.Symptoms) == 0 {
		return proto.DiagnoseResponse{Action: proto.ActionNoSymptomsMatched, TopDiseases: []proto.Candidate{}, MatchedSymptoms: []string{}}, nil
	}
	return proto.DiagnoseResponse{
		Action:         proto.ActionNeedsNarrowing,
		Confidence:     45,
		TopDiseases:    []proto.Candidate{{Name: "Malaria", Probability: 45}, {Name: "Dengue", Probability: 30}},
		Question:       "Do the fevers come in cycles?",
		QuestionNumber: 1,
	}, nil
}

func (fakeService) Ask(_ context.Context, req proto.AskRequest) (proto.AskResponse, error) {
	if len(req.QAHistory) != req.QuestionNumber {
		return proto.AskResponse{}, apperrors.ContractViolation("Expected %d Q&A pairs in history, got %d", req.QuestionNumber, len(req.QAHistory))
	}
	return proto.AskResponse{Action: proto.ActionDirectReport, Report: &proto.Report{Disease: req.TopDiseases[0].Name}}, nil
}

func (fakeService) Finalize(_ context.Context, req proto.FinalizeRequest) (proto.FinalizeResponse, error) {
	return proto.FinalizeResponse{}, apperrors.CollaboratorFailure("classifier", errors.New("connection refused"))
}

func (fakeService) Symptoms() proto.SymptomsResponse {
	return proto.SymptomsResponse{Count: 1, Symptoms: []string{"itching"}}
}

func dial(t *testing.T) *Client {
	t.Helper()
	s := grpc.NewServer()
	Register(s, fakeService{})
	if s.MethodCount() != 4 {
		t.Fatalf("registered %d methods", s.MethodCount())
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDiagnoseOverRPC(t *testing.T) {
	c := dial(t)
	resp, err := c.Diagnose(context.Background(), proto.DiagnoseRequest{Symptoms: []string{"high fever"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != proto.ActionNeedsNarrowing || resp.QuestionNumber != 1 || len(resp.TopDiseases) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAskErrorsKeepKind(t *testing.T) {
	c := dial(t)
	_, err := c.Ask(context.Background(), proto.AskRequest{
		TopDiseases:    []proto.Candidate{{Name: "Malaria"}},
		QuestionNumber: 2,
		QAHistory:      []proto.QAPair{{Question: "q", Answer: "a"}},
	})
	if !errors.Is(err, apperrors.ErrContractViolation) {
		t.Fatalf("err = %v", err)
	}
	if apperrors.HTTPStatusCode(err) != 400 {
		t.Fatalf("status = %d", apperrors.HTTPStatusCode(err))
	}

	resp, err := c.Ask(context.Background(), proto.AskRequest{
		TopDiseases:    []proto.Candidate{{Name: "Malaria"}},
		QuestionNumber: 1,
		QAHistory:      []proto.QAPair{{Question: "q", Answer: "a"}},
	})
	if err != nil || resp.Report == nil || resp.Report.Disease != "Malaria" {
		t.Fatalf("resp = %+v err = %v", resp, err)
	}
}

func TestFinalizeCollaboratorFailure(t *testing.T) {
	c := dial(t)
	_, err := c.Finalize(context.Background(), proto.FinalizeRequest{})
	if !errors.Is(err, apperrors.ErrCollaboratorFailure) {
		t.Fatalf("err = %v", err)
	}
}

func TestSymptomList(t *testing.T) {
	c := dial(t)
	resp, err := c.SymptomList(context.Background())
	if err != nil || resp.Count != 1 || resp.Symptoms[0] != "itching" {
		t.Fatalf("resp = %+v err = %v", resp, err)
	}
}
