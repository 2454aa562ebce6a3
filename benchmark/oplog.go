package benchmark

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// OpKind names a low-level call against the test file.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpOpen   OpKind = "open"
	OpClose  OpKind = "close"
	OpRead   OpKind = "read"
	OpWrite  OpKind = "write"
	OpDelete OpKind = "delete"
)

// Op is one entry of the operation log.
type Op struct {
	Seq    int
	Time   time.Time
	Kind   OpKind
	Path   string
	Offset int64
	Length int64
	Err    error
}

// OpLog keeps the operation log in memory so that recording stays cheap
// during a run. It is written out once the run has finished.
type OpLog struct {
	ops []Op
}

// NewOpLog returns an empty log.
func NewOpLog() *OpLog { return &OpLog{} }

// Record appends op. A nil log ignores the call.
func (l *OpLog) Record(op Op) {
	if l == nil {
		return
	}
	op.Seq = len(l.ops) + 1
	if op.Time.IsZero() {
		op.Time = time.Now()
	}
	l.ops = append(l.ops, op)
}

// Ops returns the recorded entries in call order.
func (l *OpLog) Ops() []Op {
	if l == nil {
		return nil
	}
	return l.ops
}

// Count returns the number of entries of the given kind.
func (l *OpLog) Count(kind OpKind) int {
	n := 0
	for _, op := range l.Ops() {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (l *OpLog) Len() int { return len(l.Ops()) }

// WriteTo writes one line per entry.
func (l *OpLog) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64
	for _, op := range l.Ops() {
		line := fmt.Sprintf("%d %s %s %s", op.Seq, op.Time.Format(time.RFC3339Nano), op.Kind, op.Path)
		if op.Kind == OpRead || op.Kind == OpWrite {
			line += fmt.Sprintf(" offset=%d length=%d", op.Offset, op.Length)
		}
		if op.Kind == OpCreate {
			line += fmt.Sprintf(" size=%d", op.Length)
		}
		if op.Err != nil {
			line += fmt.Sprintf(" error=%q", op.Err.Error())
		}
		n, err := fmt.Fprintln(bw, line)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}
