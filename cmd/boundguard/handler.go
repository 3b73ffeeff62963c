package main

import (
	"context"
	"encoding/json"

	"github.com/kbukum/boundguard/errors"
	"github.com/kbukum/boundguard/fanout"
	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/memory"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/traversal"
)

// GraphJob is the payload consumed by `boundguard run`: a dependency graph
// walked from Root under the configured traversal bounds.
type GraphJob struct {
	Root  string              `json:"root"`
	Edges map[string][]string `json:"edges"`
}

// GraphReport is published for every walked job.
type GraphReport struct {
	ItemID        string `json:"item_id" yaml:"item_id"`
	Key           string `json:"key,omitempty" yaml:"key,omitempty"`
	Root          string `json:"root" yaml:"root"`
	Steps         int    `json:"steps" yaml:"steps"`
	MaxDepth      int    `json:"max_depth" yaml:"max_depth"`
	CycleDetected bool   `json:"cycle_detected" yaml:"cycle_detected"`
	CycleAt       string `json:"cycle_at,omitempty" yaml:"cycle_at,omitempty"`
	Reason        string `json:"reason" yaml:"reason"`
	Truncated     bool   `json:"truncated" yaml:"truncated"`
	// Error carries the taxonomy code of a cyclic or truncated walk.
	Error *errors.ErrorBody `json:"error,omitempty" yaml:"error,omitempty"`
}

// graphHandler walks each job and broadcasts the report to the hub.
type graphHandler struct {
	bounds  traversal.Config
	hub     *fanout.Hub[GraphReport]
	reports *memory.Collection[GraphReport]
	log     *logger.Logger
}

func newGraphHandler(bounds traversal.Config, hub *fanout.Hub[GraphReport], sentinel *memory.Sentinel, log *logger.Logger) (*graphHandler, error) {
	reports, err := memory.Track[GraphReport](sentinel, "graph.reports", memory.CollectionConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &graphHandler{
		bounds:  bounds,
		hub:     hub,
		reports: reports,
		log:     logger.OrDefault(log, "graph"),
	}, nil
}

// Handle implements loop.Handler. Malformed payloads fail the item; bounds
// tripped during the walk are reported, not failed.
func (h *graphHandler) Handle(ctx context.Context, item queue.Item) error {
	var job GraphJob
	if err := json.Unmarshal(item.Payload, &job); err != nil {
		return errors.InvalidInput("payload", err.Error())
	}
	if job.Root == "" {
		return errors.InvalidInput("root", "root is required")
	}

	res, err := traversal.WalkGraph(ctx, h.bounds, job.Edges, job.Root)
	if err != nil {
		return err
	}

	report := GraphReport{
		ItemID:        item.ID,
		Key:           item.Key,
		Root:          res.Root,
		Steps:         res.Steps,
		MaxDepth:      res.MaxDepth,
		CycleDetected: res.CycleDetected,
		CycleAt:       res.CycleAt,
		Reason:        res.Reason.String(),
		Truncated:     res.Truncated,
	}
	if appErr := h.boundError(res); appErr != nil {
		body := appErr.ToResponse().Error
		report.Error = &body
	}
	h.reports.Add(report)

	for _, o := range fanout.Failed(h.hub.Publish(ctx, report)) {
		h.log.Warn("report listener failed", logger.Fields(
			"listener", o.Listener,
			logger.FieldItemID, item.ID,
			logger.FieldError, o.Error,
		))
	}
	return nil
}

// boundError maps a cyclic or truncated walk onto the error taxonomy. A cycle
// wins over the bound that ended the walk.
func (h *graphHandler) boundError(res *traversal.Result[string]) *errors.AppError {
	if res.CycleDetected {
		return errors.CycleDetected(res.CycleAt)
	}
	if !res.Truncated {
		return nil
	}
	switch res.Reason {
	case traversal.ReasonDepth:
		return errors.BoundExceeded("depth", h.bounds.MaxDepth)
	case traversal.ReasonIterations:
		return errors.BoundExceeded("iterations", h.bounds.MaxIterations)
	case traversal.ReasonTimeout:
		return errors.BoundExceeded("timeout", h.bounds.Timeout.String())
	}
	return nil
}

// Reports returns the most recent reports, oldest first.
func (h *graphHandler) Reports() []GraphReport {
	return h.reports.Items()
}

// logListener logs each report.
func logListener(log *logger.Logger) fanout.Listener[GraphReport] {
	return fanout.ListenerFunc[GraphReport](func(_ context.Context, r GraphReport) error {
		fields := logger.Fields(
			logger.FieldItemID, r.ItemID,
			"root", r.Root,
			"steps", r.Steps,
			"reason", r.Reason,
		)
		if r.Error != nil {
			fields[logger.FieldErrorCode] = r.Error.Code
		}
		if r.CycleDetected {
			fields["cycle_at"] = r.CycleAt
			log.Warn("cycle detected", fields)
			return nil
		}
		log.Info("graph walked", fields)
		return nil
	})
}

// pushListener forwards each report to p as a queue item keyed like the job.
func pushListener(p queue.Pusher) fanout.Listener[GraphReport] {
	return fanout.ListenerFunc[GraphReport](func(ctx context.Context, r GraphReport) error {
		payload, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return p.Push(ctx, queue.NewItem(r.Key, payload))
	})
}
