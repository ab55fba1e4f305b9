package resourcemanager

import "github.com/cuemby/forgeassets/pkg/guid"

// OpKind identifies what kind of batch-level task produced a TaskResult.
type OpKind string

const (
	OpLoadAndBind     OpKind = "load_and_bind"
	OpUnbindAndUnload OpKind = "unbind_and_unload"
	OpReloadAndRebind OpKind = "reload_and_rebind"
	OpScan            OpKind = "scan"
)

// OpResult is the outcome of processing a single guid within a TaskResult.
type OpResult struct {
	Guid    guid.Guid
	Success bool
	Message string
}

// TaskResult is returned by every ResourceManager async operation's
// Future, mirroring the original engine's per-operation result summary
// (spec.md §3, "TaskResult: {type, success, per-op results}").
type TaskResult struct {
	Op      OpKind
	Success bool
	Results []OpResult
}

func (r *TaskResult) record(g guid.Guid, err error) {
	if err != nil {
		r.Success = false
		r.Results = append(r.Results, OpResult{Guid: g, Success: false, Message: err.Error()})
		return
	}
	r.Results = append(r.Results, OpResult{Guid: g, Success: true})
}
