// Package store is the durable record of pipelines, jobs, workers, and
// users (C1). It wraps a Postgres pool (via pgx/sqlx) and is the only
// package that issues SQL; every other component depends on it through the
// methods below, never on *sql.DB directly.
package store

import (
	"strings"
	"time"
)

// JobStatus is one of the job lifecycle states from the state machine in
// spec §4.3. Terminal states are Success, Failed, Error.
type JobStatus string

const (
	JobCreated JobStatus = "created"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
	JobError   JobStatus = "error"
)

// Terminal reports whether s is one of the no-further-transitions states.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed || s == JobError
}

// Source tags where a pipeline originated, per spec §3.
type Source string

const (
	SourceManual    Source = "manual"
	SourceChat      Source = "chat"
	SourcePRWebhook Source = "pr-webhook"
)

// Pipeline is the unit of user intent: one branch, one package list, one or
// more architectures. Pipelines are created once and never mutated.
type Pipeline struct {
	ID            int64
	Packages      string // comma-separated package names
	Archs         string // comma-separated, already expand()-ed
	GitBranch     string
	GitSHA        string // fully resolved commit hash, never a symbolic ref
	CreationTime  time.Time
	Source        Source
	GitHubPR      *int64
	ChatID        *int64 // originating chat id, set iff Source == SourceChat
	CreatorUserID *int64
}

// PackageList splits Packages on comma.
func (p Pipeline) PackageList() []string { return splitNonEmpty(p.Packages, ",") }

// ArchList splits Archs on comma.
func (p Pipeline) ArchList() []string { return splitNonEmpty(p.Archs, ",") }

// Job is one arch-specific slice of a pipeline; the unit of scheduling.
type Job struct {
	ID               int64
	PipelineID       int64
	Arch             string
	Packages         string // copied verbatim from the owning pipeline
	Status           JobStatus
	CreationTime     time.Time
	AssignTime       *time.Time
	FinishTime       *time.Time
	AssignedWorkerID *int64
	BuiltByWorkerID  *int64

	// Resource floors; nil means unconstrained.
	RequireMinCore            *int32
	RequireMinTotalMem        *int64
	RequireMinTotalMemPerCore *float32
	RequireMinDisk            *int64

	GitHubCheckRunID *int64

	// Outcome fields, only ever written on the transition into a terminal
	// state (spec §3 invariant ii).
	BuildSuccess       *bool
	PushSuccess        *bool
	SuccessfulPackages *string // comma-separated
	FailedPackage      *string
	SkippedPackages    *string // comma-separated
	LogURL             *string
	ElapsedSecs        *int64
	ErrorMessage       *string
}

// ResourceFloorsSatisfiedBy reports whether the job's non-null resource
// floors are all satisfied by a worker declaring the given resources,
// mirroring the poll-time filter in spec §4.3.
func (j Job) ResourceFloorsSatisfiedBy(cores int32, memBytes, freeDiskBytes int64) bool {
	if j.RequireMinCore != nil && *j.RequireMinCore > cores {
		return false
	}
	if j.RequireMinTotalMem != nil && *j.RequireMinTotalMem > memBytes {
		return false
	}
	if j.RequireMinTotalMemPerCore != nil && cores > 0 {
		perCore := float32(memBytes) / float32(cores)
		if *j.RequireMinTotalMemPerCore > perCore {
			return false
		}
	}
	if j.RequireMinDisk != nil && *j.RequireMinDisk > freeDiskBytes {
		return false
	}
	return true
}

// Worker is a remote process offering build capacity for one architecture.
// Natural key is (Hostname, Arch).
type Worker struct {
	ID                int64
	Hostname          string
	Arch              string
	LastHeartbeat     time.Time
	MemoryBytes       int64
	LogicalCores      int32
	FreeDiskBytes     int64
	Performance       *int64 // smaller = faster
	InternetReachable *bool
	Visible           bool
}

// Live reports whether the worker's last heartbeat is within T_live.
func (w Worker) Live(now time.Time, tLive time.Duration) bool {
	return now.Sub(w.LastHeartbeat) < tLive
}

// User resolves an originating identity (GitHub account or chat account) to
// a display record. Not on the scheduling hot path.
type User struct {
	ID           int64
	GitHubLogin  *string
	GitHubID     *int64
	GitHubName   *string
	GitHubAvatar *string
	GitHubEmail  *string
	ChatID       *int64
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}
