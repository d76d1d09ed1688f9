// Package format renders job and pipeline state as the HTML, Markdown, and
// checklist-label strings the chat surface, PR comments, and PR body
// checklist consume.
package format

import (
	"fmt"
	"strings"

	"github.com/buildit-project/buildit/internal/store"
)

// Success and Failed are the glyphs prefixing every rendered result,
// carried verbatim from the original coordinator's chat messages.
const (
	Success = "✅️"
	Failed  = "❌"
)

// ArchLabel returns the human-readable checklist label for a architecture
// tag, or ("", false) if arch is not recognized.
func ArchLabel(arch string) (string, bool) {
	switch arch {
	case "amd64":
		return "AMD64 `amd64`", true
	case "arm64":
		return "AArch64 `arm64`", true
	case "noarch":
		return "Architecture-independent `noarch`", true
	case "loongarch64":
		return "LoongArch 64-bit `loongarch64`", true
	case "loongson3":
		return "Loongson 3 `loongson3`", true
	case "mips64r6el":
		return "MIPS R6 64-bit (Little Endian) `mips64r6el`", true
	case "ppc64el":
		return "PowerPC 64-bit (Little Endian) `ppc64el`", true
	case "riscv64":
		return "RISC-V 64-bit `riscv64`", true
	default:
		return "", false
	}
}

func glyph(success bool) string {
	if success {
		return Success
	}
	return Failed
}

func orNone(s *string) string {
	if s == nil || *s == "" {
		return "None"
	}
	return *s
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

// NewPipelineSummaryHTML renders the message announcing a newly created
// pipeline.
func NewPipelineSummaryHTML(p store.Pipeline) string {
	var pr string
	if p.GitHubPR != nil {
		pr = fmt.Sprintf("\n<b>GitHub PR</b>: <a href=\"https://github.com/buildit-project/packages/pull/%d\">#%d</a>", *p.GitHubPR, *p.GitHubPR)
	}
	return fmt.Sprintf(
		"<b><u>New Pipeline Summary</u></b>\n\n<b>Pipeline</b>: <a href=\"https://buildit.example/pipelines/%d\">#%d</a>\n<b>Git reference</b>: %s%s\n<b>Architecture(s)</b>: %s\n<b>Package(s)</b>: %s",
		p.ID, p.ID, p.GitBranch, pr, strings.Join(p.ArchList(), ", "), strings.Join(p.PackageList(), ", "),
	)
}

// BuildResultHTML renders a completed job's result as an HTML message.
// internal/propagate sends BuildResultMarkdown to the chat surface instead.
func BuildResultHTML(p store.Pipeline, j store.Job, hostname string, success bool) string {
	var pr string
	if p.GitHubPR != nil {
		pr = fmt.Sprintf("<b>GitHub PR</b>: <a href=\"https://github.com/buildit-project/packages/pull/%d\">#%d</a>\n", *p.GitHubPR, *p.GitHubPR)
	}
	logLine := "Failed to push log! See the worker's push_failed_logs directory."
	if j.LogURL != nil && *j.LogURL != "" {
		logLine = fmt.Sprintf("<a href=\"%s\">Build Log &gt;&gt;</a>", *j.LogURL)
	}
	var elapsed int64
	if j.ElapsedSecs != nil {
		elapsed = *j.ElapsedSecs
	}
	return fmt.Sprintf(
		"%s Job completed on %s (%s)\n\n"+
			"<b>Job</b>: <a href=\"https://buildit.example/jobs/%d\">#%d</a>\n"+
			"<b>Pipeline</b>: <a href=\"https://buildit.example/pipelines/%d\">#%d</a>\n"+
			"<b>Enqueue time</b>: %s\n"+
			"<b>Time elapsed</b>: %ds\n"+
			"<b>Git commit</b>: <a href=\"https://github.com/buildit-project/packages/commit/%s\">%s</a>\n"+
			"<b>Git branch</b>: <a href=\"https://github.com/buildit-project/packages/tree/%s\">%s</a>\n"+
			"%s<b>Architecture</b>: %s\n"+
			"<b>Package(s) to build</b>: %s\n"+
			"<b>Package(s) successfully built</b>: %s\n"+
			"<b>Package(s) failed to build</b>: %s\n"+
			"<b>Package(s) not built due to previous build failure</b>: %s\n\n"+
			"%s",
		glyph(success), hostname, j.Arch,
		j.ID, j.ID,
		p.ID, p.ID,
		j.CreationTime.UTC().Format("2006-01-02 15:04:05 UTC"),
		elapsed,
		p.GitSHA, shortSHA(p.GitSHA),
		p.GitBranch, p.GitBranch,
		pr, j.Arch,
		strings.Join(strings.Split(j.Packages, ","), ", "),
		orNone(j.SuccessfulPackages),
		orNone(j.FailedPackage),
		orNone(j.SkippedPackages),
		logLine,
	)
}

// BuildResultMarkdown renders a completed job's result as Markdown; it is
// the chat message body and the check-run summary internal/propagate sends.
func BuildResultMarkdown(p store.Pipeline, j store.Job, hostname string, success bool) string {
	var gitCommit, gitBranch string
	if p.GitSHA != "" {
		gitCommit = fmt.Sprintf("**Git commit**: [%s](https://github.com/buildit-project/packages/commit/%s)\n", shortSHA(p.GitSHA), p.GitSHA)
	}
	if p.GitBranch != "" {
		gitBranch = fmt.Sprintf("**Git branch**: [%s](https://github.com/buildit-project/packages/tree/%s)\n", p.GitBranch, p.GitBranch)
	}
	logLine := "Failed to push log! See the worker's `push_failed_logs` directory."
	if j.LogURL != nil && *j.LogURL != "" {
		logLine = fmt.Sprintf("[Build Log >>](%s)", *j.LogURL)
	}
	var elapsed int64
	if j.ElapsedSecs != nil {
		elapsed = *j.ElapsedSecs
	}
	return fmt.Sprintf(
		"%s Job completed on %s (%s)\n\n"+
			"**Job**: [#%d](https://buildit.example/jobs/%d)\n"+
			"**Pipeline**: [#%d](https://buildit.example/pipelines/%d)\n"+
			"**Enqueue time**: %s\n"+
			"**Time elapsed**: %ds\n"+
			"%s%s**Architecture**: %s\n"+
			"**Package(s) to build**: %s\n"+
			"**Package(s) successfully built**: %s\n"+
			"**Package(s) failed to build**: %s\n"+
			"**Package(s) not built due to previous build failure**: %s\n\n"+
			"%s\n",
		glyph(success), hostname, j.Arch,
		j.ID, j.ID,
		p.ID, p.ID,
		j.CreationTime.UTC().Format("2006-01-02 15:04:05 UTC"),
		elapsed,
		gitCommit, gitBranch, j.Arch,
		strings.Join(strings.Split(j.Packages, ","), ", "),
		orNone(j.SuccessfulPackages),
		orNone(j.FailedPackage),
		orNone(j.SkippedPackages),
		logLine,
	)
}

// IsBotResultComment reports whether a PR comment body is one of this
// bot's job-result posts, identified by its leading glyph.
func IsBotResultComment(body string) bool {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return false
	}
	return fields[0] == Success || fields[0] == Failed
}

// CommentArch extracts the "Architecture: <arch>" value from a bot result
// comment body, for matching it against the job being reported.
func CommentArch(body string) (string, bool) {
	for _, line := range strings.Split(body, "\n") {
		for _, prefix := range []string{"Architecture:", "**Architecture**:"} {
			if rest, ok := strings.CutPrefix(line, prefix); ok {
				return strings.TrimSpace(rest), true
			}
		}
	}
	return "", false
}
