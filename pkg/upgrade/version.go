package upgrade

import (
	"github.com/hashicorp/go-version"
)

// CompareVersions compares two daemon version strings using semantic
// version rules, re-grounded on github.com/hashicorp/go-version (the
// teacher already pulls this in for MongoDB's major.minor.patch upgrade
// path validation; this drops the teacher's hand-rolled MongoVersion
// parser in favor of the library it already depends on).
//
// Returns -1 if a < b, 0 if equal, 1 if a > b. An unparseable string
// compares as less than any parseable one.
func CompareVersions(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}
