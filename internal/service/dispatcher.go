package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	tcotel "github.com/Strob0t/taskcrew/internal/adapter/otel"
	"github.com/Strob0t/taskcrew/internal/config"
	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/message"
	"github.com/Strob0t/taskcrew/internal/domain/plan"
	"github.com/Strob0t/taskcrew/internal/domain/review"
	"github.com/Strob0t/taskcrew/internal/domain/routing"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/logger"
	"github.com/Strob0t/taskcrew/internal/port/database"
	"github.com/Strob0t/taskcrew/internal/port/worker"
)

// DiscardedReason is the failure detail for a result that arrived after the
// task left running, e.g. because it was cancelled mid-flight.
const DiscardedReason = "discarded: task no longer running"

// DispatcherDeps groups everything a Dispatcher needs.
type DispatcherDeps struct {
	Store   database.Store
	Invoker worker.Invoker
	Spawner *Spawner
	Changes *Notifiers
	Metrics *tcotel.Metrics // optional
	Log     *slog.Logger    // optional
	Config  config.Orchestrator
}

// Dispatcher runs dispatch cycles: claim a batch, route, invoke, classify,
// record. Concurrent cycles are safe because claims are atomic in the store.
type Dispatcher struct {
	store     database.Store
	invoker   worker.Invoker
	spawner   *Spawner
	changes   *Notifiers
	metrics   *tcotel.Metrics
	log       *slog.Logger
	batchSize int
	policy    review.Policy
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(d DispatcherDeps) *Dispatcher {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	batch := d.Config.BatchSize
	if batch <= 0 {
		batch = 10
	}
	spawner := d.Spawner
	if spawner == nil {
		spawner = NewSpawner(d.Store, d.Changes)
	}
	return &Dispatcher{
		store:     d.Store,
		invoker:   d.Invoker,
		spawner:   spawner,
		changes:   d.Changes,
		metrics:   d.Metrics,
		log:       log,
		batchSize: batch,
		policy:    review.Policy{AutoApproveFullAuto: d.Config.AutoApproveFullAuto},
	}
}

// ProcessedTask is the per-task detail of a task that reached completed or review.
type ProcessedTask struct {
	TaskID  string          `json:"taskId"`
	Agent   agent.Role      `json:"agent"`
	Status  task.Status     `json:"status"`
	Result  json.RawMessage `json:"result,omitempty"`
	Spawned []string        `json:"spawned,omitempty"`
}

// FailedTask is the per-task detail of a task the cycle could not finish.
type FailedTask struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error"`
}

// Details lists what happened to every claimed task.
type Details struct {
	Processed []ProcessedTask `json:"processed"`
	Failed    []FailedTask    `json:"failed"`
}

// Summary reports one dispatch cycle.
type Summary struct {
	Total     int     `json:"total"`
	Processed int     `json:"processed"`
	Failed    int     `json:"failed"`
	Details   Details `json:"details"`
}

// SingleResult reports a forced run of one task.
type SingleResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Task    *task.Task      `json:"task,omitempty"`
}

// ProcessQueue runs one dispatch cycle for a business. Claimed tasks are
// processed one at a time in claimed order; a failing task never stops the
// rest of the batch. Only a failed business lookup or claim aborts the cycle.
func (d *Dispatcher) ProcessQueue(ctx context.Context, businessID string) (Summary, error) {
	start := time.Now()
	ctx, span := tcotel.StartCycleSpan(ctx, businessID)
	defer span.End()

	sum := Summary{Details: Details{Processed: []ProcessedTask{}, Failed: []FailedTask{}}}

	b, err := d.store.GetBusiness(ctx, businessID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sum, fmt.Errorf("process queue %s: %w", businessID, err)
	}
	claimed, err := d.store.ClaimBatch(ctx, b.ID, d.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sum, fmt.Errorf("process queue %s: %w", businessID, err)
	}
	d.metrics.RecordClaimed(ctx, b.ID, len(claimed))
	sum.Total = len(claimed)
	// The whole batch is running now, not only the task in flight.
	for i := range claimed {
		d.changes.Changed(ctx, &claimed[i])
	}

	for i := range claimed {
		r := d.run(ctx, b, &claimed[i])
		if r.failure != "" {
			sum.Failed++
			sum.Details.Failed = append(sum.Details.Failed, FailedTask{TaskID: claimed[i].ID, Error: r.failure})
			continue
		}
		sum.Processed++
		sum.Details.Processed = append(sum.Details.Processed, ProcessedTask{
			TaskID:  claimed[i].ID,
			Agent:   r.role,
			Status:  r.task.Status,
			Result:  r.output,
			Spawned: r.spawned,
		})
	}

	elapsed := time.Since(start)
	d.metrics.RecordCycle(ctx, elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("tasks.total", sum.Total),
		attribute.Int("tasks.processed", sum.Processed),
		attribute.Int("tasks.failed", sum.Failed),
	)
	if sum.Total > 0 {
		d.log.Info("dispatch cycle finished",
			"business_id", b.ID,
			"total", sum.Total,
			"processed", sum.Processed,
			"failed", sum.Failed,
			"duration", elapsed,
		)
	}
	return sum, nil
}

// ProcessSingle claims one queued task and runs it through the same pipeline
// as a cycle. A task that is not queued yields ErrInvalidTransition.
func (d *Dispatcher) ProcessSingle(ctx context.Context, taskID string) (SingleResult, error) {
	t, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		return SingleResult{}, err
	}
	b, err := d.store.GetBusiness(ctx, t.BusinessID)
	if err != nil {
		return SingleResult{}, err
	}
	claimed, err := d.store.Claim(ctx, taskID)
	if err != nil {
		return SingleResult{}, err
	}
	d.metrics.RecordClaimed(ctx, b.ID, 1)
	d.changes.Changed(ctx, claimed)

	r := d.run(ctx, b, claimed)
	res := SingleResult{Success: r.failure == "", Data: r.output, Error: r.failure, Task: r.task}
	return res, nil
}

type runResult struct {
	task    *task.Task
	role    agent.Role
	output  json.RawMessage
	spawned []string
	failure string
}

// run takes one claimed task to its next resting status. Store writes after
// the worker call use a context detached from cancellation, so a caller that
// goes away does not strand the task in running.
func (d *Dispatcher) run(ctx context.Context, b *business.Business, t *task.Task) runResult {
	ctx, span := tcotel.StartTaskSpan(logger.WithTask(ctx, t.ID, ""), t.ID, string(t.Type))
	defer span.End()
	log := d.log.With("business_id", t.BusinessID)
	res := runResult{task: t}

	role, err := routing.Resolve(t)
	if err != nil {
		log.WarnContext(ctx, "routing failed", "error", err)
		d.note(ctx, t, "", fmt.Sprintf("routing failed: %v", err))
		return d.finish(ctx, log, b, t, "", task.Failed(err.Error()), res)
	}
	res.role = role
	span.SetAttributes(attribute.String("role", string(role)))
	d.note(ctx, t, role, fmt.Sprintf("dispatched %s to %s", t.Type, role))

	output, invokeErr := d.invoke(ctx, t, role)
	if invokeErr != nil {
		log.WarnContext(ctx, "worker invocation failed", "role", role, "error", invokeErr)
		span.RecordError(invokeErr)
	}
	outcome := review.Classify(role, review.Result{Output: output, Err: invokeErr}, b.Autonomy)
	return d.finish(context.WithoutCancel(ctx), log, b, t, role, outcome, res)
}

func (d *Dispatcher) invoke(ctx context.Context, t *task.Task, role agent.Role) (json.RawMessage, error) {
	ctx, span := tcotel.StartWorkerSpan(ctx, string(role), t.ID)
	defer span.End()

	start := time.Now()
	resp, err := d.invoker.Invoke(ctx, worker.Request{
		Role:       role,
		Action:     string(t.Type),
		BusinessID: t.BusinessID,
		TaskID:     t.ID,
		Input:      t.Input,
	})
	d.metrics.RecordWorkerCall(ctx, string(role), time.Since(start).Seconds(), err == nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return task.WrapOutput(resp.Data), nil
}

// finish records the outcome and runs the follow-ups: auto-approval and, for
// the commander, spawning the plan it returned.
func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, b *business.Business, t *task.Task,
	role agent.Role, outcome task.Outcome, res runResult) runResult {
	updated, err := d.store.RecordOutcome(ctx, t.ID, outcome)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.InfoContext(ctx, "worker result discarded", "role", role, "error", err)
			d.note(ctx, t, role, DiscardedReason)
			res.failure = DiscardedReason
			return res
		}
		log.ErrorContext(ctx, "record outcome failed", "role", role, "error", err)
		res.failure = fmt.Sprintf("record outcome: %v", err)
		return res
	}
	res.task = updated
	d.changes.Changed(ctx, updated)
	d.metrics.RecordOutcome(ctx, string(role), string(outcome.Kind))

	switch outcome.Kind {
	case task.OutcomeFailed:
		d.note(ctx, t, role, "failed: "+outcome.Error)
		res.failure = outcome.Error
		return res
	case task.OutcomeNeedsReview:
		d.note(ctx, t, role, "awaiting review")
	default:
		d.note(ctx, t, role, "completed")
	}
	res.output = outcome.Output

	if d.policy.AutoApprove(outcome, b.Autonomy) {
		approved, err := d.store.Approve(ctx, t.ID)
		if err != nil {
			log.WarnContext(ctx, "auto-approve failed", "error", err)
		} else {
			res.task = approved
			d.changes.Changed(ctx, approved)
			d.note(ctx, t, role, "auto-approved for full-auto business")
		}
	}

	if role == agent.RoleCommander {
		res.spawned = d.spawnPlan(ctx, log, updated, outcome.Output)
	}
	return res
}

// spawnPlan enqueues the children a commander output describes. Failures are
// logged and noted; they never change the parent's outcome.
func (d *Dispatcher) spawnPlan(ctx context.Context, log *slog.Logger, parent *task.Task, output json.RawMessage) []string {
	p, ok, err := plan.Parse(output)
	if err != nil {
		log.WarnContext(ctx, "commander output is not a plan", "error", err)
		d.note(ctx, parent, agent.RoleCommander, fmt.Sprintf("plan ignored: %v", err))
		return nil
	}
	if !ok {
		return nil
	}
	ids, err := d.spawner.SpawnPlan(ctx, parent, p)
	if err != nil {
		log.WarnContext(ctx, "spawn subtasks failed", "spawned", len(ids), "error", err)
		d.note(ctx, parent, agent.RoleCommander, fmt.Sprintf("spawn failed after %d subtasks: %v", len(ids), err))
		return ids
	}
	log.InfoContext(ctx, "subtasks spawned", "count", len(ids))
	d.note(ctx, parent, agent.RoleCommander, fmt.Sprintf("spawned %d subtasks", len(ids)))
	return ids
}

// note appends to the task's activity log. Best effort.
func (d *Dispatcher) note(ctx context.Context, t *task.Task, role agent.Role, body string) {
	err := d.store.AppendMessage(ctx, message.Message{
		TaskID:     t.ID,
		BusinessID: t.BusinessID,
		From:       message.FromDispatcher,
		To:         string(role),
		Body:       body,
	})
	if err != nil {
		d.log.Debug("append message failed", "task_id", t.ID, "error", err)
	}
}
