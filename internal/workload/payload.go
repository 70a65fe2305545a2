package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// PayloadTransform simulates (de)serialization pressure: a large nested
// document is encoded and decoded repeatedly, and every decoded copy is
// scanned once.
type PayloadTransform struct {
	items        int
	nestedFields int
	rounds       int
	logger       *logger.Logger
}

// NewPayloadTransform creates the payload transform workload
func NewPayloadTransform(cfg domain.EngineConfig, deps Dependencies) *PayloadTransform {
	return &PayloadTransform{
		items:        cfg.PayloadItems,
		nestedFields: cfg.PayloadNestedFields,
		rounds:       cfg.PayloadRounds,
		logger:       deps.Logger.WorkloadLogger(string(domain.OperationPayloadTransform)),
	}
}

// Kind implements domain.Workload
func (w *PayloadTransform) Kind() domain.OperationKind {
	return domain.OperationPayloadTransform
}

// Execute implements domain.Workload
func (w *PayloadTransform) Execute(ctx context.Context, requestID string, tc domain.TelemetryContext) error {
	document := w.build(requestID)

	for round := 0; round < w.rounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		encoded, err := json.Marshal(document)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInternalError,
				string(domain.OperationPayloadTransform), "Failed to encode payload")
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInternalError,
				string(domain.OperationPayloadTransform), "Failed to decode payload")
		}

		tc.Put(domain.FieldJSONSizeBytes, len(encoded))
		tc.Put(domain.FieldProcessedJSONItems, transformItems(decoded))
	}

	return nil
}

func (w *PayloadTransform) build(requestID string) map[string]interface{} {
	list := make([]map[string]interface{}, 0, w.items)
	for i := 0; i < w.items; i++ {
		deep := make(map[string]string, w.nestedFields)
		for j := 0; j < w.nestedFields; j++ {
			deep[fmt.Sprintf("field_%d", j)] = fmt.Sprintf("Deep nested data %d for item %d", j, i)
		}

		list = append(list, map[string]interface{}{
			"id":          i,
			"data":        fmt.Sprintf("Large data string %d %s", i, uuid.NewString()),
			"nested":      map[string]string{"value": fmt.Sprintf("Nested value %d", i)},
			"deep_nested": deep,
		})
	}

	return map[string]interface{}{
		"uuid":       requestID,
		"timestamp":  time.Now().UnixMilli(),
		"large_list": list,
	}
}

// transformItems scans the decoded list and returns how many items carried data
func transformItems(document map[string]interface{}) int {
	list, ok := document["large_list"].([]interface{})
	if !ok {
		return 0
	}

	processed := 0
	for _, raw := range list {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		data, ok := item["data"].(string)
		if !ok {
			continue
		}
		item["data"] = strings.TrimSpace(strings.ToLower(strings.ToUpper(data)))
		processed++
	}
	return processed
}
