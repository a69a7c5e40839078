// Package rpc registers the DiagnosisService methods on the internal
// JSON-over-TCP server and offers a typed client for them.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

// Service is the engine surface served over RPC. *engine.Engine satisfies it.
type Service interface {
	Diagnose(ctx context.Context, req proto.DiagnoseRequest) (proto.DiagnoseResponse, error)
	Ask(ctx context.Context, req proto.AskRequest) (proto.AskResponse, error)
	Finalize(ctx context.Context, req proto.FinalizeRequest) (proto.FinalizeResponse, error)
	Symptoms() proto.SymptomsResponse
}

// Register binds every DiagnosisService method to svc.
func Register(s *grpc.Server, svc Service) {
	s.Register(proto.MethodDiagnose, unary(svc.Diagnose))
	s.Register(proto.MethodAsk, unary(svc.Ask))
	s.Register(proto.MethodFinalize, unary(svc.Finalize))
	s.Register(proto.MethodSymptoms, func(context.Context, json.RawMessage) (any, error) {
		return svc.Symptoms(), nil
	})
}

func unary[Req, Resp any](fn func(context.Context, Req) (Resp, error)) grpc.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in Req
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding params: %v", err)
			}
		}
		return fn(ctx, in)
	}
}

// Client calls DiagnosisService over an RPC connection.
type Client struct {
	conn *grpc.Client
}

// Dial connects to a diagnosis RPC server.
func Dial(ctx context.Context, addr string) (*Client, error) {
	c, err := grpc.DialContext(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

func (c *Client) Diagnose(ctx context.Context, req proto.DiagnoseRequest) (proto.DiagnoseResponse, error) {
	var out proto.DiagnoseResponse
	err := c.conn.Call(ctx, proto.MethodDiagnose, req, &out)
	return out, err
}

func (c *Client) Ask(ctx context.Context, req proto.AskRequest) (proto.AskResponse, error) {
	var out proto.AskResponse
	err := c.conn.Call(ctx, proto.MethodAsk, req, &out)
	return out, err
}

func (c *Client) Finalize(ctx context.Context, req proto.FinalizeRequest) (proto.FinalizeResponse, error) {
	var out proto.FinalizeResponse
	err := c.conn.Call(ctx, proto.MethodFinalize, req, &out)
	return out, err
}

// SymptomList fetches the canonical vocabulary.
func (c *Client) SymptomList(ctx context.Context) (proto.SymptomsResponse, error) {
	var out proto.SymptomsResponse
	err := c.conn.Call(ctx, proto.MethodSymptoms, struct{}{}, &out)
	return out, err
}

func (c *Client) Close() error { return c.conn.Close() }
