// Package archset knows the set of architecture tags the build fleet
// supports and how the synthetic "mainline" alias expands into it.
package archset

import "sort"

// Mainline is the synthetic tag that expands to All.
const Mainline = "mainline"

// Noarch is architecture-independent content, routed to amd64 workers.
const Noarch = "noarch"

// All is the canonical set of real (non-synthetic) architecture tags,
// mirroring the upstream package tree's supported target list.
var All = []string{
	"amd64",
	"arm64",
	"loongarch64",
	"loongson3",
	"mips64r6el",
	"ppc64el",
	"riscv64",
}

// Valid reports whether tag is a real architecture or noarch.
func Valid(tag string) bool {
	if tag == Noarch {
		return true
	}
	for _, a := range All {
		if a == tag {
			return true
		}
	}
	return false
}

// Expand normalises a requested arch list: "mainline" is replaced by All,
// duplicates are removed, and the result is sorted lexicographically.
// Expand is idempotent: Expand(Expand(archs)) == Expand(archs).
func Expand(archs []string) []string {
	seen := make(map[string]bool, len(archs))
	var out []string
	for _, a := range archs {
		if a == Mainline {
			for _, full := range All {
				if !seen[full] {
					seen[full] = true
					out = append(out, full)
				}
			}
			continue
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

// Unknown returns the subset of archs that are neither Mainline nor Valid.
func Unknown(archs []string) []string {
	var bad []string
	for _, a := range archs {
		if a == Mainline || Valid(a) {
			continue
		}
		bad = append(bad, a)
	}
	return bad
}

// EligibleForWorker reports whether a job with the given job arch can be
// assigned to a worker of the given worker arch. The only cross-arch route
// is noarch content going to amd64 workers.
func EligibleForWorker(jobArch, workerArch string) bool {
	if jobArch == workerArch {
		return true
	}
	return jobArch == Noarch && workerArch == "amd64"
}
