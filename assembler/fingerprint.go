package assembler

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"videoStitch/core"
)

// Fingerprint derives the deterministic artifact key from the query, the
// ordered cut list and the merge parameters. Equal inputs must collide so
// concurrent identical queries converge on one build.
func Fingerprint(query string, segments []core.MergedSegment, separatorSeconds float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "q=%s;sep=%.3f", strings.TrimSpace(strings.ToLower(query)), separatorSeconds)
	for _, s := range segments {
		fmt.Fprintf(&b, ";%s:%.3f-%.3f", s.VideoID, s.Start, s.End)
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(b.String())))
}
