package models

import "time"

type UpdateStatus string

const (
	UpdateStatusQueued     UpdateStatus = "Queued"
	UpdateStatusInProgress UpdateStatus = "InProgress"
	UpdateStatusComplete   UpdateStatus = "Complete"
)

// Operation names every execution kind the dispatcher knows how to run,
// matching the ExecuteRequest tagged union in spec.md §4.5.
type Operation string

const (
	OpRunProcedure      Operation = "RunProcedure"
	OpRunBuild          Operation = "RunBuild"
	OpDeploy            Operation = "Deploy"
	OpStartContainer    Operation = "StartContainer"
	OpStopContainer     Operation = "StopContainer"
	OpStopAllContainers Operation = "StopAllContainers"
	OpRemoveContainer   Operation = "RemoveContainer"
	OpCloneRepo         Operation = "CloneRepo"
	OpPullRepo          Operation = "PullRepo"
	OpBuildRepo         Operation = "BuildRepo"
	OpRunSync           Operation = "RunSync"
	OpDeployStack       Operation = "DeployStack"
	OpDestroyStack      Operation = "DestroyStack"
	OpLaunchServer      Operation = "LaunchServer"
	OpPruneNetworks     Operation = "PruneNetworks"
	OpPruneImages       Operation = "PruneImages"
	OpPruneContainers   Operation = "PruneContainers"
	OpSleep             Operation = "Sleep"
	OpNone              Operation = "None"
)

// Log is one stage of an Update: a command and its captured output.
type Log struct {
	Stage     string    `json:"stage"`
	Command   string    `json:"command,omitempty"`
	Stdout    string    `json:"stdout,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	Success   bool      `json:"success"`
	StartTs   time.Time `json:"start_ts"`
	EndTs     time.Time `json:"end_ts"`
}

// Update is the append-only audit record of one executed operation.
type Update struct {
	Id        string         `json:"id"`
	Target    ResourceTarget `json:"target"`
	Operation Operation      `json:"operation"`
	Operator  string         `json:"operator"` // user id
	Status    UpdateStatus   `json:"status"`
	Success   bool           `json:"success"`
	StartTs   time.Time      `json:"start_ts"`
	EndTs     time.Time      `json:"end_ts"`
	Version   string         `json:"version,omitempty"`
	Logs      []Log          `json:"logs"`
}

// AddLog appends a log entry in arrival order. Logs within one Update
// are totally ordered and happen-before the broadcast of that Update
// (spec.md §5 ordering guarantee).
func (u *Update) AddLog(l Log) {
	u.Logs = append(u.Logs, l)
}

// Finalize closes out the Update exactly once: success is the AND of
// every log's success (spec.md §3 invariant 2, and empty-logs vacuously
// succeeds, matching "empty stage list succeeds instantly" in §8).
func (u *Update) Finalize(now time.Time) {
	u.Status = UpdateStatusComplete
	u.EndTs = now
	u.Success = true
	for _, l := range u.Logs {
		if !l.Success {
			u.Success = false
			break
		}
	}
}

// ListItem is the broadcast/list projection of an Update with the
// operator's username joined in (spec.md §4.4).
type ListItem struct {
	Update
	OperatorUsername string `json:"operator_username"`
}
