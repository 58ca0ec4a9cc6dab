// Package script generates monitoring scripts for external tracing
// runtimes, embedding the drop reason table so the runtime can translate
// the kfree_skb tracepoint's reason argument on its own.
package script

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/retis-org/drdump/pkg/dropreason"
)

// Dialects understood by Emit.
const (
	Bpftrace = "bpftrace"
	Stap     = "stap"
)

// ErrUnknownDialect is returned for dialects Emit cannot generate.
var ErrUnknownDialect = errors.New("unknown script dialect")

// Emit writes a monitoring script for the given dialect. Every table entry
// is embedded; the two dialects only differ in the surrounding syntax.
func Emit(w io.Writer, dialect string, t *dropreason.Table) error {
	var tmpl *template.Template
	switch dialect {
	case Bpftrace:
		tmpl = bpftraceTmpl
	case Stap:
		tmpl = stapTmpl
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}

	return tmpl.Execute(w, t.Reasons())
}

func mapping(format string, reasons []dropreason.Reason) string {
	var sb strings.Builder
	for _, r := range reasons {
		fmt.Fprintf(&sb, format, r.Value, r.Name)
	}
	return sb.String()
}

var bpftraceTmpl = template.Must(template.New("bpftrace").
	Funcs(template.FuncMap{
		"mapping": func(reasons []dropreason.Reason) string {
			return mapping("    @drop_reasons[%d] = \"%s\";\n", reasons)
		},
	}).
	Parse(`#!/usr/bin/bpftrace

BEGIN
{
    printf("Tracing dropped skbs... Hit Ctrl-C to end.\n");
}

tracepoint:skb:kfree_skb
{
{{mapping .}}    @stack[ksym(args->location),@drop_reasons[args->reason]] = count();
    clear(@drop_reasons);
}

interval:s:5
{
    time("%F %T %z (%Z)\n");
    print(@stack);
    printf("\n");
    clear(@stack);
}

END
{
  clear(@stack);
}
`))

var stapTmpl = template.Must(template.New("stap").
	Funcs(template.FuncMap{
		"mapping": func(reasons []dropreason.Reason) string {
			return mapping("    drop_reasons[%d] = \"%s\";\n", reasons)
		},
	}).
	Parse(`#! /usr/bin/env stap

global skb_drop_reason
global drop_reasons

probe kernel.trace("kfree_skb") {
    skb_drop_reason[$location, $reason] <<< 1;
}

probe begin {
    printf("Tracing dropped skbs... Hit Ctrl-C to end.\n");
}

# Report every 5 seconds
probe timer.sec(5)
{
    printf("\n%s", tz_ctime(gettimeofday_s()))
{{mapping .}}
    printf("\n%-35s%-35s%10s\n","Drop","Location","Count");
    foreach([location, reason] in skb_drop_reason) {
        printf("%-35s%-35s%10d\n",symname(location),drop_reasons[reason],@count(skb_drop_reason[location, reason]))
    }
    delete skb_drop_reason
}
`))
