package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const reportContentType = "application/json"

// exportReport writes res as JSON and returns the object's URI. It is a no-op
// without a blob store.
func exportReport[T any](ctx context.Context, w *Worker, res Result[T]) (string, error) {
	if w.blobStore == nil {
		return "", nil
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	hash, err := w.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash report: %w", err)
	}
	path := w.reportPath(string(res.Kind), res.OperationID, hash)
	uri, err := w.blobStore.PutObject(ctx, path, reportContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put report: %w", err)
	}
	return uri, nil
}

func (w *Worker) reportPath(kind, id, hash string) string {
	prefix := strings.Trim(w.cfg.ReportPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s/%s.json", kind, id, hash)
	}
	return fmt.Sprintf("%s/%s/%s/%s.json", prefix, kind, id, hash)
}

// Notice is the completion payload published to Config.Topic.
type Notice struct {
	OperationID string `json:"operation_id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Items       int    `json:"items"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	ReportURI   string `json:"report_uri,omitempty"`
	Error       string `json:"error,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Attributes become Pub/Sub message attributes.
func (n Notice) Attributes() map[string]string {
	return map[string]string{"operation_id": n.OperationID, "kind": n.Kind, "status": n.Status}
}

func publishNotice[T any](ctx context.Context, w *Worker, res Result[T], logger *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := Notice{
		OperationID: res.OperationID,
		Kind:        string(res.Kind),
		Status:      string(res.Status),
		Items:       res.Counters.Items,
		Succeeded:   res.Counters.Succeeded,
		Failed:      res.Counters.Failed,
		ReportURI:   res.ReportURI,
		Error:       res.Error,
		Timestamp:   w.clock.Now().UTC().Format(time.RFC3339),
	}
	msgID, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		logger.Warn("completion notice failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("completion notice published", zap.String("topic", w.cfg.Topic), zap.String("message_id", msgID))
}
