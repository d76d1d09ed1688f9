// Package workerrun implements the buildit-worker runtime: the
// heartbeat/poll loops that talk to a coordinator, and the per-job build
// pipeline that fetches the tree, invokes the package-build tool, and
// reports the outcome back.
package workerrun

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"github.com/orcaman/writerseeker"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/buildit-project/buildit/internal/config"
)

// CommandRunner executes a command in a working directory, streaming its
// combined stdout/stderr to sink line by line, and returns the captured
// stdout (needed by ClassifyBuildOutput) plus whether the command
// succeeded. The actual package-build tool invocation lives behind this
// narrow interface since building packages is out of scope here; a real
// implementation shells out with os/exec the way distri's autobuilder
// does, driven through a LineSplittingWriter.
type CommandRunner interface {
	Run(ctx context.Context, cmd string, args []string, dir string, sink LineSink) (stdout []byte, success bool, err error)
}

// Runner drives one worker process: heartbeat loop, poll loop, and the
// build pipeline for each offered job.
type Runner struct {
	Cfg      config.WorkerConfig
	Client   *Client
	Exec     CommandRunner
	Log      *zap.Logger
	Sink     LineSink
	Uploader LogUploader

	Hostname string

	// FetchAttempts bounds the tree-fetch retry loop; zero means the
	// default of 5 (matching the original's unconditional `for i in 0..5`).
	FetchAttempts int
}

func (r *Runner) fetchAttempts() int {
	if r.FetchAttempts > 0 {
		return r.FetchAttempts
	}
	return 5
}

// LogUploader delivers a completed job's compressed log archive somewhere
// durable and returns a URL to retrieve it, or ("", nil) if no remote
// archive is configured (the caller falls back to the local archive dir).
type LogUploader interface {
	Upload(ctx context.Context, fileName string, gzipBody []byte) (url string, err error)
}

// NewRunner wires a Runner from its configured dependencies.
func NewRunner(cfg config.WorkerConfig, hostname string, exec CommandRunner, uploader LogUploader, log *zap.Logger) *Runner {
	return &Runner{
		Cfg:      cfg,
		Client:   NewClient(cfg.Server, config.HTTPTimeout),
		Exec:     exec,
		Log:      log,
		Uploader: uploader,
		Hostname: hostname,
	}
}

// HeartbeatLoop reports liveness every config.HeartbeatEvery until ctx is
// cancelled. Errors are logged, never fatal: a missed heartbeat just makes
// the worker look briefly offline, matching the original's "warn and keep
// looping" heartbeat_worker behavior.
func (r *Runner) HeartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(config.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			profile, err := CollectProfile(r.Cfg.CielPath)
			if err != nil {
				r.logWarn("collecting resource profile for heartbeat", err)
				continue
			}
			req := HeartbeatRequest{
				Hostname:           r.Hostname,
				Arch:               r.Cfg.Arch,
				WorkerSecret:       r.Cfg.WorkerSecret,
				MemoryBytes:        profile.MemoryBytes,
				DiskFreeSpaceBytes: profile.FreeDiskBytes,
				LogicalCores:       profile.LogicalCores,
			}
			if err := r.Client.Heartbeat(ctx, req); err != nil {
				r.logWarn("sending heartbeat", err)
			}
		}
	}
}

// PollLoop asks for work every config.PollEvery, running any offered job
// to completion before polling again, matching the original's single
// poll-build-report-sleep loop (one job in flight per worker process).
func (r *Runner) PollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		profile, err := CollectProfile(r.Cfg.CielPath)
		if err != nil {
			r.logWarn("collecting resource profile for poll", err)
			r.sleep(ctx, config.PollEvery)
			continue
		}

		offer, ok, err := r.Client.Poll(ctx, PollRequest{
			Hostname:           r.Hostname,
			Arch:               r.Cfg.Arch,
			WorkerSecret:       r.Cfg.WorkerSecret,
			MemoryBytes:        profile.MemoryBytes,
			DiskFreeSpaceBytes: profile.FreeDiskBytes,
			LogicalCores:       profile.LogicalCores,
		})
		if err != nil {
			r.logWarn("polling for work", err)
			r.sleep(ctx, config.PollEvery)
			continue
		}

		if ok {
			r.runJob(ctx, offer)
		}

		r.sleep(ctx, config.PollEvery)
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (r *Runner) runJob(ctx context.Context, offer PollResponse) {
	if r.Log != nil {
		r.Log.Info("processing job", zap.Int64("job_id", offer.JobID), zap.String("branch", offer.GitBranch))
	}

	outcome, err := r.build(ctx, offer)
	req := JobUpdateRequest{
		Hostname:     r.Hostname,
		Arch:         r.Cfg.Arch,
		WorkerSecret: r.Cfg.WorkerSecret,
		JobID:        offer.JobID,
	}
	if err != nil {
		msg := err.Error()
		req.Error = &msg
		if r.Log != nil {
			r.Log.Warn("job failed", zap.Int64("job_id", offer.JobID), zap.Error(err))
		}
	} else {
		req.Outcome = &outcome
	}

	if err := r.Client.ReportJob(ctx, req); err != nil {
		r.logWarn("reporting job outcome", err)
	}
}

// build runs the fetch-build-push pipeline for one offered job, matching
// the original build() function's control flow: a failed tree fetch or
// reset short-circuits with build_success=false rather than erroring the
// whole job, since that is itself a reportable outcome.
func (r *Runner) build(ctx context.Context, offer PollResponse) (JobOutcome, error) {
	begin := time.Now()
	var logs bytes.Buffer
	sink := &bufSink{buf: &logs, downstream: r.Sink}

	treePath := filepath.Join(r.Cfg.CielPath, "TREE")
	outputPath := filepath.Join(r.Cfg.CielPath, "OUTPUT-"+offer.GitBranch)

	if _, err := os.Stat(outputPath); err == nil {
		r.Exec.Run(ctx, "rm", []string{"-rf", "debs"}, outputPath, sink)
	}

	fetched, err := RetryWithBackoff(ctx, r.fetchAttempts(), func(ctx context.Context) (bool, error) {
		_, ok, err := r.Exec.Run(ctx, "git", []string{"fetch", "https://github.com/AOSC-Dev/aosc-os-abbs.git", offer.GitBranch}, treePath, sink)
		return ok, err
	})
	if err != nil {
		return JobOutcome{}, xerrors.Errorf("fetching tree: %w", err)
	}

	var outcome JobOutcome
	if fetched {
		r.Exec.Run(ctx, "git", []string{"checkout", "-b", offer.GitBranch}, treePath, sink)
		r.Exec.Run(ctx, "git", []string{"checkout", offer.GitBranch}, treePath, sink)
		_, resetOK, _ := r.Exec.Run(ctx, "git", []string{"reset", offer.GitSHA, "--hard"}, treePath, sink)

		if resetOK {
			r.Exec.Run(ctx, "ciel", []string{"update-os"}, r.Cfg.CielPath, sink)

			buildArgs := append([]string{"build", "-i", r.Cfg.CielInstance}, splitPackages(offer.Packages)...)
			stdout, buildOK, _ := r.Exec.Run(ctx, "ciel", buildArgs, r.Cfg.CielPath, sink)

			cls := ClassifyBuildOutput(string(stdout))
			outcome.BuildSuccess = buildOK
			outcome.SuccessfulPackages = cls.Successful
			outcome.SkippedPackages = cls.Skipped
			if cls.Failed != "" {
				outcome.FailedPackage = &cls.Failed
			}

			if buildOK && r.Cfg.UploadSSHKeyPath != "" {
				pushArgs := pushpkgArgs(r.Cfg, offer.GitBranch)
				_, pushOK, _ := r.Exec.Run(ctx, "pushpkg", pushArgs, outputPath, sink)
				outcome.PushSuccess = pushOK
			}
		}
	}

	outcome.ElapsedSecs = int64(time.Since(begin).Seconds())

	url, err := r.archiveLog(ctx, offer, logs.Bytes())
	if err != nil {
		r.logWarn("archiving job log", err)
	} else if url != "" {
		outcome.LogURL = &url
	}

	return outcome, nil
}

func (r *Runner) archiveLog(ctx context.Context, offer PollResponse, raw []byte) (string, error) {
	fileName := fmt.Sprintf("%d-%s-%s-%s-%s.txt.gz",
		offer.JobID, offer.GitBranch, r.Cfg.Arch, r.Hostname, time.Now().Format("2006-01-02-15:04:05"))

	ws := &writerseeker.WriterSeeker{}
	gz := pgzip.NewWriter(ws)
	if _, err := gz.Write(raw); err != nil {
		return "", xerrors.Errorf("compressing log: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", xerrors.Errorf("closing log compressor: %w", err)
	}

	body, err := readAllSeeker(ws)
	if err != nil {
		return "", xerrors.Errorf("reading compressed log: %w", err)
	}

	if r.Uploader != nil {
		url, err := r.Uploader.Upload(ctx, fileName, body)
		if err == nil && url != "" {
			return url, nil
		}
		if err != nil {
			r.logWarn("uploading log archive, falling back to local copy", err)
		}
	}

	if err := os.MkdirAll(r.Cfg.LogArchiveDir, 0o755); err != nil {
		return "", xerrors.Errorf("creating local log archive dir: %w", err)
	}
	dest := filepath.Join(r.Cfg.LogArchiveDir, fileName)
	if err := renameio.WriteFile(dest, body, 0o644); err != nil {
		return "", xerrors.Errorf("writing local log archive: %w", err)
	}
	return "", nil
}

func readAllSeeker(ws *writerseeker.WriterSeeker) ([]byte, error) {
	r := ws.Reader()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func splitPackages(packages string) []string {
	return strings.Split(packages, ",")
}

func pushpkgArgs(cfg config.WorkerConfig, branch string) []string {
	args := []string{"--host", cfg.RsyncHost, "-i", cfg.UploadSSHKeyPath, "maintainers", branch}
	if cfg.PushpkgOptions != "" {
		args = append([]string{cfg.PushpkgOptions}, args...)
	}
	if branch != "stable" {
		args = append([]string{"--force-push-noarch-package"}, args...)
	}
	return args
}

func (r *Runner) logWarn(msg string, err error) {
	if r.Log != nil {
		r.Log.Warn(msg, zap.Error(err))
	}
}

// bufSink records every line into buf (building the flat log blob archived
// at the end of a job) while also forwarding to an optional downstream
// sink (the live log fan-out channel). A downstream error is dropped, so
// every line still reaches buf.
type bufSink struct {
	buf        *bytes.Buffer
	downstream LineSink
}

func (s *bufSink) SendLine(ctx context.Context, line string) error {
	s.buf.WriteString(line)
	s.buf.WriteByte('\n')
	if s.downstream != nil {
		_ = s.downstream.SendLine(ctx, line)
	}
	return nil
}
