package workerrun

import "strings"

// Classification splits a build tool's package list into the three
// buckets a terminal job outcome records.
type Classification struct {
	Successful []string
	Failed     string
	Skipped    []string
}

// ClassifyBuildOutput parses the package-build tool's banner output,
// matching acbs/acbs/util.py's section markers: once a "====...===="
// divider followed by a line containing "ACBS Build" has been seen,
// "Failed package:", "Package(s) built:", and "Package(s) not built due to
// previous build failure:" headers switch which bucket subsequent
// "name (arch @ version)" lines belong to. A blank line resets the active
// bucket so trailing banner text after the last section isn't misfiled.
func ClassifyBuildOutput(stdout string) Classification {
	var c Classification
	var foundBanner, foundACBSBuild bool
	var inFailed, inBuilt, inNotBuilt bool

	for _, line := range strings.Split(stdout, "\n") {
		switch {
		case strings.Contains(line, "========================================"):
			foundBanner = true
			continue
		case strings.Contains(line, "ACBS Build"):
			foundACBSBuild = true
			continue
		}

		if !(foundBanner && foundACBSBuild) {
			continue
		}

		switch {
		case strings.HasPrefix(line, "Failed package:"):
			inFailed, inBuilt, inNotBuilt = true, false, false
		case strings.HasPrefix(line, "Package(s) built:"):
			inFailed, inBuilt, inNotBuilt = false, true, false
		case strings.HasPrefix(line, "Package(s) not built due to previous build failure:"):
			inFailed, inBuilt, inNotBuilt = false, false, true
		case line == "":
			inFailed, inBuilt, inNotBuilt = false, false, false
		case strings.Contains(line, "("):
			name, _, ok := strings.Cut(line, " ")
			if !ok {
				continue
			}
			switch {
			case inBuilt:
				c.Successful = append(c.Successful, name)
			case inFailed:
				c.Failed = name
			case inNotBuilt:
				c.Skipped = append(c.Skipped, name)
			}
		}
	}
	return c
}
