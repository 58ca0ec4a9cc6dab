package dropreason

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// Dump writes every reason in ascending value order, one "value = name"
// line each, values right-aligned to the widest one.
func Dump(w io.Writer, t *Table, verbose bool) error {
	width := 1
	if rs := t.Reasons(); len(rs) > 0 {
		width = len(fmt.Sprintf("%d", rs[len(rs)-1].Value))
	}

	for _, r := range t.Reasons() {
		res := t.Resolve(r.Value)
		if _, err := fmt.Fprintf(w, "%*d = %s\n", width, r.Value, res.Format(verbose)); err != nil {
			return err
		}
	}

	return nil
}

// DumpSubsystems renders the sub-system id table.
func DumpSubsystems(w io.Writer, t *Table) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"ID", "Sub-system", "Base"})
	for _, s := range t.Subsystems() {
		tw.Append([]string{
			fmt.Sprintf("%d", s.ID),
			s.Name,
			fmt.Sprintf("%#x", uint64(s.ID)<<s.BaseShift),
		})
	}
	tw.Render()
}
