package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// table prints aligned columns with a header on a terminal and plain
// tab-separated rows otherwise, so output pipes cleanly into other tools.
type table struct {
	w     io.Writer
	tw    *tabwriter.Writer
	plain bool
}

func newTable(out io.Writer, aligned bool, headers ...string) *table {
	t := &table{w: out, plain: !aligned}
	if aligned {
		t.tw = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		t.w = t.tw
		fmt.Fprintln(t.w, strings.Join(headers, "\t"))
		dashes := make([]string, len(headers))
		for i, h := range headers {
			dashes[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(t.w, strings.Join(dashes, "\t"))
	}
	return t
}

func (t *table) row(cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

func (t *table) flush() {
	if t.tw != nil {
		t.tw.Flush()
	}
}
