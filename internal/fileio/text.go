package fileio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hierplan/hierplan/planbuilder"
)

// writePlanTree renders op and its inputs as indented lines, upstream-first
// (same traversal order as planbuilder.Walk), one line per operator via its
// own String().
func writePlanTree(b *strings.Builder, op planbuilder.Op, depth int) {
	if op == nil {
		return
	}
	for _, in := range op.Inputs() {
		writePlanTree(b, in, depth+1)
	}
	fmt.Fprintf(b, "%s%s\n", strings.Repeat("  ", depth), op.String())
}

// TextPlanWriter emits one file per query under Dir, named by the caller
// (spec.md §6: "q0", "q1", ...), holding the plain-text indented dump of
// its operator tree.
type TextPlanWriter struct {
	Dir string
}

func (w TextPlanWriter) WritePlan(name string, op planbuilder.Op) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("fileio: creating plan output dir %q: %w", w.Dir, err)
	}
	var b strings.Builder
	writePlanTree(&b, op, 0)
	path := filepath.Join(w.Dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("fileio: writing plan %q: %w", path, err)
	}
	return nil
}
