package pool

import "regexp"

// failedPackagePatterns extracts the offending package name from a
// failed installer's stderr, for failure_state.failed_package
// (spec.md §4.F: "best-effort enrichment, never required for
// correctness"). Patterns are checked in order; the first match wins.
var failedPackagePatterns = []*regexp.Regexp{
	// pip/uv: "ERROR: No matching distribution found for foopkg==1.2.3"
	regexp.MustCompile(`(?i)No matching distribution found for ([A-Za-z0-9_.\-\[\]]+)`),
	// pip/uv: "ERROR: Could not find a version that satisfies the requirement foopkg"
	regexp.MustCompile(`(?i)Could not find a version that satisfies the requirement ([A-Za-z0-9_.\-\[\]]+)`),
	// conda solver: "nothing provides requested foopkg ==1.2.3"
	regexp.MustCompile(`(?i)nothing provides requested ([A-Za-z0-9_.\-]+)`),
	// conda solver: "package foopkg-1.2.3 requires ..., but none of the providers can be installed"
	regexp.MustCompile(`(?i)package ([A-Za-z0-9_.\-]+)-[^\s]+ requires`),
}

// ParseFailedPackage returns the best-effort offending package name
// from installer stderr, or "" if none of the known patterns match.
func ParseFailedPackage(stderr string) string {
	for _, re := range failedPackagePatterns {
		if m := re.FindStringSubmatch(stderr); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}
