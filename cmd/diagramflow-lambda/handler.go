package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/api"
	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

// handler serves API Gateway proxy events. Streaming is not available
// through the proxy integration, so only single-shot routes exist.
type handler struct {
	gen    *diagramflow.Generator
	logger *slog.Logger
}

func (h *handler) handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := ev.Body
	if ev.IsBase64Encoded {
		dec, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return h.fail(ev, &dferrors.ConfigError{Field: "body", Message: "invalid base64 body: " + err.Error()}), nil
		}
		body = string(dec)
	}

	route := ev.HTTPMethod + " " + strings.TrimSuffix(ev.Path, "/")
	switch {
	case route == "POST /v1/generate":
		var req diagramflow.Request
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return h.fail(ev, badJSON(err)), nil
		}
		res, err := h.gen.Generate(ctx, req)
		if err != nil {
			return h.fail(ev, err), nil
		}
		return respond(http.StatusOK, api.NewGenerateResponse(res)), nil

	case route == "POST /v1/excalidraw":
		var req diagramflow.ExcalidrawRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return h.fail(ev, badJSON(err)), nil
		}
		res, err := h.gen.GenerateExcalidraw(ctx, req)
		if err != nil {
			return h.fail(ev, err), nil
		}
		return respond(http.StatusOK, res.Scene), nil

	case ev.HTTPMethod == http.MethodGet && strings.HasPrefix(ev.Path, "/v1/canvas/"):
		id := ev.PathParameters["id"]
		if id == "" {
			id = strings.TrimPrefix(ev.Path, "/v1/canvas/")
		}
		g, err := h.gen.Store().Get(ctx, id)
		if err != nil {
			return h.fail(ev, err), nil
		}
		return respond(http.StatusOK, g), nil

	case route == "GET /v1/templates":
		return respond(http.StatusOK, diagramflow.Templates()), nil
	}

	return respond(http.StatusNotFound, api.ErrorResponse{
		Error:  fmt.Sprintf("no route for %s %s", ev.HTTPMethod, ev.Path),
		Status: http.StatusNotFound,
	}), nil
}

func (h *handler) fail(ev events.APIGatewayProxyRequest, err error) events.APIGatewayProxyResponse {
	status := dferrors.HTTPStatus(err)
	h.logger.Warn("request failed",
		slog.String("path", ev.Path),
		slog.String("request_id", ev.RequestContext.RequestID),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	return respond(status, api.ErrorResponse{
		Error:  err.Error(),
		Status: status,
		Stage:  diagramflow.FailedStage(err),
	})
}

func badJSON(err error) error {
	return &dferrors.ConfigError{Field: "body", Message: "invalid JSON body: " + err.Error()}
}

func respond(status int, v any) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(v)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
