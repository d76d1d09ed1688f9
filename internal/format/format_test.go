package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildit-project/buildit/internal/store"
)

func TestArchLabelKnownAndUnknown(t *testing.T) {
	label, ok := ArchLabel("riscv64")
	require.True(t, ok)
	require.Equal(t, "RISC-V 64-bit `riscv64`", label)

	_, ok = ArchLabel("sparc64")
	require.False(t, ok)
}

func TestBuildResultHTMLIncludesGlyphAndFields(t *testing.T) {
	pr := int64(4992)
	successful := "fd"
	logURL := "https://logs.example/abc"
	elapsed := int64(888)

	p := store.Pipeline{
		ID:        1,
		GitBranch: "fd-9.0.0",
		GitSHA:    "34acef168fc5ec454d3825fc864964951b130b49",
		GitHubPR:  &pr,
	}
	j := store.Job{
		ID:                 1,
		Arch:               "amd64",
		Packages:           "fd,fd2",
		CreationTime:       time.Unix(61, 0),
		SuccessfulPackages: &successful,
		LogURL:             &logURL,
		ElapsedSecs:        &elapsed,
	}

	s := BuildResultHTML(p, j, "Yerus", true)
	require.Contains(t, s, Success)
	require.Contains(t, s, "Yerus (amd64)")
	require.Contains(t, s, "34acef16</a>")
	require.Contains(t, s, "fd, fd2")
	require.Contains(t, s, "Build Log &gt;&gt;")
	require.Contains(t, s, "#4992")
}

func TestBuildResultHTMLFailedGlyphAndMissingLog(t *testing.T) {
	p := store.Pipeline{ID: 2, GitBranch: "stable", GitSHA: "deadbeefdeadbeef"}
	j := store.Job{ID: 9, Arch: "riscv64", Packages: "gcc"}

	s := BuildResultHTML(p, j, "worker9", false)
	require.Contains(t, s, Failed)
	require.Contains(t, s, "Failed to push log")
	require.Contains(t, s, "None")
}

func TestIsBotResultComment(t *testing.T) {
	require.True(t, IsBotResultComment(Success+" Job completed"))
	require.True(t, IsBotResultComment(Failed+" Job completed"))
	require.False(t, IsBotResultComment("just a regular comment"))
	require.False(t, IsBotResultComment(""))
}

func TestCommentArchExtractsArchitectureLine(t *testing.T) {
	body := "header\n**Architecture**: riscv64\nfooter"
	arch, ok := CommentArch(body)
	require.True(t, ok)
	require.Equal(t, "riscv64", arch)
}

func TestCommentArchAbsent(t *testing.T) {
	_, ok := CommentArch("no architecture line here")
	require.False(t, ok)
}
