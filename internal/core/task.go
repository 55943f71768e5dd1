package core

import "time"

// RootTaskID is the reserved id of the top node of every project.
const RootTaskID = "root"

// ReplanRequestDetails is carried when a node transitions to NEEDS_REPLAN.
type ReplanRequestDetails struct {
	Reason           string   `json:"reason"`
	FailedChildIDs   []string `json:"failedChildIds,omitempty"`
	UserInstructions string   `json:"userInstructions,omitempty"`
}

// AuxKeyExecutedAsAtomic marks a PLAN node that the atomizer collapsed and an
// executor ran directly.
const AuxKeyExecutedAsAtomic = "was_executed_as_atomic"

// AuxKeyPartialAggregation marks a PLAN node that aggregated over a mix of
// done and non-done children.
const AuxKeyPartialAggregation = "partial_aggregation"

// TaskNodeData is the full, plain-data state of one unit of work. It is
// guarded by the runtime node wrapper; code outside the runtime only ever sees
// copies of it.
type TaskNodeData struct {
	// Identity and structure.
	TaskID       string `json:"taskId"`
	Layer        int    `json:"layer"`
	ParentNodeID string `json:"parentNodeId,omitempty"`
	SubGraphID   string `json:"subGraphId,omitempty"`

	// Intent.
	Goal             string   `json:"goal"`
	OverallObjective string   `json:"overallObjective"`
	TaskType         TaskType `json:"taskType"`
	NodeType         NodeType `json:"nodeType"`

	// Runtime.
	Status            Status                `json:"status"`
	Result            any                   `json:"result,omitempty"`
	OutputSummary     string                `json:"outputSummary,omitempty"`
	Error             string                `json:"error,omitempty"`
	AgentName         string                `json:"agentName,omitempty"`
	InputPayload      *AgentTaskInput       `json:"inputPayload,omitempty"`
	PlannedSubTaskIDs []string              `json:"plannedSubTaskIds,omitempty"`
	ReplanAttempts    int                   `json:"replanAttempts,omitempty"`
	ReplanDetails     *ReplanRequestDetails `json:"replanDetails,omitempty"`
	AuxData           map[string]any        `json:"auxData,omitempty"`

	// Timestamps.
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

// Aux reads an aux key, tolerating a nil map.
func (d *TaskNodeData) Aux(key string) (any, bool) {
	if d.AuxData == nil {
		return nil, false
	}
	v, ok := d.AuxData[key]
	return v, ok
}

// AuxBool reads a boolean aux key; missing or mistyped values read as false.
func (d *TaskNodeData) AuxBool(key string) bool {
	v, ok := d.Aux(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SetAux writes an aux key, allocating the map on first use.
func (d *TaskNodeData) SetAux(key string, value any) {
	if d.AuxData == nil {
		d.AuxData = map[string]any{}
	}
	d.AuxData[key] = value
}

// KnowledgeRecord is the per-task summary row derived from each node at each
// status change. Last writer wins per task id.
type KnowledgeRecord struct {
	TaskID        string    `json:"taskId"`
	Goal          string    `json:"goal"`
	Status        Status    `json:"status"`
	OutputSummary string    `json:"outputSummary,omitempty"`
	Result        any       `json:"result,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	CompletedAt   time.Time `json:"completedAt,omitzero"`
}

// RecordFromNode derives the knowledge record for a node snapshot.
func RecordFromNode(d TaskNodeData) KnowledgeRecord {
	return KnowledgeRecord{
		TaskID:        d.TaskID,
		Goal:          d.Goal,
		Status:        d.Status,
		OutputSummary: d.OutputSummary,
		Result:        d.Result,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		CompletedAt:   d.CompletedAt,
	}
}

// TraceEntry records one adapter invocation stage for a node. Purely
// diagnostic; the scheduler never reads it back.
type TraceEntry struct {
	NodeID         string         `json:"nodeId"`
	Stage          string         `json:"stage"`
	StartedAt      time.Time      `json:"startedAt"`
	CompletedAt    time.Time      `json:"completedAt,omitzero"`
	InputContext   *AgentTaskInput `json:"inputContext,omitempty"`
	LLMResponse    any            `json:"llmResponse,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
	Error          string         `json:"error,omitempty"`
}
