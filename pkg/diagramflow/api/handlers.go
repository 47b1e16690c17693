package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

// maxJSONBody caps JSON request bodies. Canvases may reach the 5 MB
// session limit, so this sits above it.
const maxJSONBody = 8 << 20

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req diagramflow.Request
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.gen.Generate(r.Context(), req)
	s.metrics.generation(req.Mode(), err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewGenerateResponse(res))
}

func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	var req diagramflow.Request
	if !s.decode(w, r, &req) {
		return
	}

	stream.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	sink := s.countingSink(stream.NewWriterSink(w))
	var opts []stream.EmitterOption
	if s.timings != nil {
		opts = append(opts, stream.WithTimings(*s.timings))
	}

	_, err := s.gen.GenerateStream(r.Context(), req, sink, opts...)
	s.metrics.generation(req.Mode(), err)
	if err != nil {
		s.logger.Debug("stream ended with error",
			slog.String("error", err.Error()),
			slog.String("stage", diagramflow.FailedStage(err)),
		)
	}
}

// countingSink counts every event that reaches the wire.
func (s *Server) countingSink(next stream.Sink) stream.Sink {
	return stream.SinkFunc(func(ctx context.Context, ev stream.Event) error {
		if err := next.Send(ctx, ev); err != nil {
			return err
		}
		s.metrics.Events.WithLabelValues(string(ev.Tag)).Inc()
		return nil
	})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImage+1<<20)
	if err := r.ParseMultipartForm(s.maxImage); err != nil {
		s.writeError(w, r, &dferrors.ConfigError{Field: "image", Message: fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, r, &dferrors.ConfigError{Field: "image", Message: "missing image file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxImage+1))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read image: %w", err))
		return
	}
	if int64(len(data)) > s.maxImage {
		s.writeError(w, r, &dferrors.ConfigError{Field: "image", Message: fmt.Sprintf("image exceeds %d bytes", s.maxImage)})
		return
	}

	req := diagramflow.ImageRequest{
		Image:     data,
		Hint:      r.FormValue("hint"),
		SessionID: r.FormValue("session_id"),
		Preset:    r.FormValue("preset"),
	}
	res, err := s.gen.GenerateFromImage(r.Context(), req)
	s.metrics.generation(diagramflow.ModeVision, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewGenerateResponse(res))
}

func (s *Server) handleExcalidraw(w http.ResponseWriter, r *http.Request) {
	var req diagramflow.ExcalidrawRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.gen.GenerateExcalidraw(r.Context(), req)
	s.metrics.generation(diagramflow.ModeExcalidraw, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Scene)
}

func (s *Server) handleSaveCanvas(w http.ResponseWriter, r *http.Request) {
	var req CanvasRequest
	if !s.decode(w, r, &req) {
		return
	}

	g := model.Graph{Nodes: req.Nodes, Edges: req.Edges, Mermaid: req.MermaidCode}
	res, err := s.gen.Store().Save(r.Context(), req.SessionID, g)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetCanvas(w http.ResponseWriter, r *http.Request) {
	g, err := s.gen.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteCanvas(w http.ResponseWriter, r *http.Request) {
	if err := s.gen.Store().Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, diagramflow.Templates())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	presets := s.gen.Presets()
	names := presets.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: s.gen.Store().Len(),
		Presets:  names,
		Default:  presets.Default(),
	})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, &dferrors.ConfigError{Field: "body", Message: fmt.Sprintf("invalid JSON body: %v", err)})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := dferrors.HTTPStatus(err)
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// client went away; nobody reads the body
		status = 499
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	writeJSON(w, status, ErrorResponse{
		Error:  err.Error(),
		Status: status,
		Stage:  diagramflow.FailedStage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
