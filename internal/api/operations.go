package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/matcher"
	"github.com/JakeFAU/fileops/internal/metrics"
	"github.com/JakeFAU/fileops/internal/pipeline"
	"github.com/JakeFAU/fileops/internal/progress"
	"github.com/JakeFAU/fileops/internal/registry"
	"github.com/JakeFAU/fileops/internal/store"
	"github.com/JakeFAU/fileops/internal/worker"
)

// SSE event names.
const (
	sseProgress = "progress"
	sseResult   = "result"
	sseError    = "error"
)

// operationFields are accepted by every operation endpoint.
type operationFields struct {
	OperationID string `json:"operation_id"`
	Report      bool   `json:"report"`
}

type searchRequest struct {
	operationFields
	pipeline.SearchRequest
}

type deleteRequest struct {
	operationFields
	pipeline.DeleteRequest
}

type listRequest struct {
	operationFields
	pipeline.ListRequest
}

type renameRequest struct {
	operationFields
	pipeline.RenameRequest
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, err := matcher.ParsePatternType(string(req.PatternType))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.PatternType = kind
	opts, ok := s.options(w, req.operationFields)
	if !ok {
		return
	}
	streamOperation(s, w, r, opts, func(ctx context.Context, sink progress.Sink) (worker.Result[[]pipeline.FileMatch], error) {
		return s.worker.Search(ctx, opts, req.SearchRequest, sink)
	})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	opts, ok := s.options(w, req.operationFields)
	if !ok {
		return
	}
	streamOperation(s, w, r, opts, func(ctx context.Context, sink progress.Sink) (worker.Result[pipeline.DeleteResult], error) {
		return s.worker.Delete(ctx, opts, req.DeleteRequest, sink)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !decodeBody(w, r, &req) {
		return
	}
	opts, ok := s.options(w, req.operationFields)
	if !ok {
		return
	}
	streamOperation(s, w, r, opts, func(ctx context.Context, sink progress.Sink) (worker.Result[[]string], error) {
		return s.worker.List(ctx, opts, req.ListRequest, sink)
	})
}

func (s *Server) rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	opts, ok := s.options(w, req.operationFields)
	if !ok {
		return
	}
	streamOperation(s, w, r, opts, func(ctx context.Context, sink progress.Sink) (worker.Result[pipeline.RenameResult], error) {
		return s.worker.Rename(ctx, opts, req.RenameRequest, sink)
	})
}

// cancelOperation is idempotent and accepts ids that never ran: the registry
// keeps a tombstone so a late submission is rejected.
func (s *Server) cancelOperation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "operation_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "operation_id is required")
		return
	}
	s.worker.Cancel(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"operation_id": id, "status": "cancel_requested"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) options(w http.ResponseWriter, f operationFields) (worker.Options, bool) {
	opts := worker.Options{ID: strings.TrimSpace(f.OperationID), Report: f.Report}
	if opts.ID != "" || s.idGen == nil {
		return opts, true
	}
	id, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("generate operation id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate operation id")
		return opts, false
	}
	opts.ID = id
	return opts, true
}

type finishedOperation[T any] struct {
	res worker.Result[T]
	err error
}

// streamOperation runs op and relays its progress as Server-Sent Events.
// Failures before the first event (bad input, a rejected id) are answered
// with a plain JSON error instead. When the client goes away the stream is
// closed, which the running pipeline sees as a failed send.
func streamOperation[T any](
	s *Server,
	w http.ResponseWriter,
	r *http.Request,
	opts worker.Options,
	op func(context.Context, progress.Sink) (worker.Result[T], error),
) {
	ctx := r.Context()
	logger := s.logger.With(zap.String("operation_id", opts.ID), zap.String("request_id", requestID(ctx)))
	events := progress.NewStream()
	done := make(chan finishedOperation[T], 1)
	go func() {
		res, err := op(ctx, events)
		events.Finish()
		done <- finishedOperation[T]{res: res, err: err}
	}()

	first, err := events.Next(ctx)
	switch {
	case errors.Is(err, io.EOF):
		out := <-done
		if out.err != nil {
			writeJSON(w, statusForError(out.err), errorPayload(out.res.OperationID, out.res.Status, out.err))
			return
		}
		writeJSON(w, http.StatusOK, out.res)
		return
	case err != nil:
		events.Close()
		<-done
		logger.Debug("client left before the first event", zap.Error(err))
		return
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Operation-ID", opts.ID)
	w.WriteHeader(http.StatusOK)

	evt := first
	for {
		if werr := writeEvent(w, sseProgress, evt); werr != nil {
			logger.Info("progress stream write failed, disconnecting", zap.Error(werr))
			events.Close()
			<-done
			return
		}
		metrics.ObserveProgressEvent(string(evt.Kind), string(evt.Type))
		if ferr := rc.Flush(); ferr != nil {
			logger.Debug("flush failed", zap.Error(ferr))
		}
		evt, err = events.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Info("client disconnected", zap.Error(err))
			events.Close()
			<-done
			return
		}
	}

	out := <-done
	if out.err != nil {
		err = writeEvent(w, sseError, errorPayload(out.res.OperationID, out.res.Status, out.err))
	} else {
		err = writeEvent(w, sseResult, out.res)
	}
	if err != nil {
		logger.Debug("final event write failed", zap.Error(err))
		return
	}
	_ = rc.Flush()
}

func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	return nil
}

func errorPayload(id string, status store.Status, err error) map[string]string {
	return map[string]string{
		"operation_id": id,
		"status":       string(status),
		"error":        err.Error(),
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidPath),
		errors.Is(err, matcher.ErrEmptyPattern),
		errors.Is(err, matcher.ErrInvalidPattern):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrCancelled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
