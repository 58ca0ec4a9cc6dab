// Package dropreason builds the skb drop reason lookup table from kernel
// BTF and resolves raw 32-bit codes back to symbolic names.
package dropreason

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	// CoreEnum is the mandatory reason enum. A kernel without it does not
	// support drop reasons at all.
	CoreEnum = "skb_drop_reason"
	// SubsysEnum declares the ids sub-systems register their own reason
	// ranges under.
	SubsysEnum = "skb_drop_reason_subsys"

	// SubsysShift is the kernel's SKB_DROP_REASON_SUBSYS_SHIFT
	// (include/net/dropreason-core.h): a raw code is the sub-system id in
	// the high bits and a sub-system local value in the low ones.
	SubsysShift = 16

	// subsysPrefix marks enum members that describe the sub-system
	// encoding itself rather than a standalone reason.
	subsysPrefix = "SKB_DROP_REASON_SUBSYS_"

	// Number of sub-systems known when this tool was written, the
	// kernel's SKB_DROP_REASON_SUBSYS_NUM. Newer kernels may declare
	// more; resolution still works for those, so this is only used to
	// notify the user.
	knownSubsystems = 5
)

// ErrDuplicateValue means a single enum binds one value to two names. A
// lookup table built from it would silently lose one of them, so the whole
// schema is rejected instead.
var ErrDuplicateValue = errors.New("duplicate drop reason value")

// Member is one enum constant, narrowed to the 32-bit space raw codes
// live in.
type Member struct {
	Name  string
	Value uint32
}

// Reason maps one raw value to its canonical name.
type Reason struct {
	Value uint32
	Name  string
}

// Subsystem is a registered drop reason sub-system. BaseShift is the bit
// position its id occupies inside a raw code.
type Subsystem struct {
	ID        uint32
	Name      string
	BaseShift uint32
}

// Table is the resolved reason mapping. It is built once and never
// mutated afterward.
type Table struct {
	reasons []Reason
	subsys  []Subsystem
	byValue map[uint32]string
	byID    map[uint32]string
}

type tagged struct {
	name  string
	group int
}

// Build constructs a Table from enum member groups, one group per source
// enum, in precedence order. Members named after the sub-system convention
// are split off into the sub-system table; among them, values too wide for
// the id field (the SKB_DROP_REASON_SUBSYS_MASK marker) describe the
// encoding and are dropped entirely.
//
// Within one group a value bound to two different names is a schema
// inconsistency and fails with ErrDuplicateValue. Across groups the earlier
// group wins: sub-system enums alias generic core reasons on purpose (eg.
// mac80211's RX_CONTINUE reuses SKB_CONSUMED).
func Build(groups ...[]Member) (*Table, error) {
	reasons := make(map[uint32]tagged)
	subsys := make(map[uint32]tagged)

	for gi, group := range groups {
		for _, m := range group {
			dst := reasons

			if strings.HasPrefix(m.Name, subsysPrefix) {
				if m.Value > math.MaxUint16 {
					log.Debugf("dropping encoding marker %s (%#x)", m.Name, m.Value)
					continue
				}
				dst = subsys
			}

			prev, ok := dst[m.Value]
			if !ok {
				dst[m.Value] = tagged{name: m.Name, group: gi}
				continue
			}
			if prev.name == m.Name {
				continue
			}
			if prev.group == gi {
				return nil, fmt.Errorf("%w: %d is both %s and %s",
					ErrDuplicateValue, m.Value, prev.name, m.Name)
			}
			// Earlier enums take precedence.
			log.Debugf("keeping %s over %s for value %d", prev.name, m.Name, m.Value)
		}
	}

	t := &Table{
		reasons: make([]Reason, 0, len(reasons)),
		subsys:  make([]Subsystem, 0, len(subsys)),
		byValue: make(map[uint32]string, len(reasons)),
		byID:    make(map[uint32]string, len(subsys)),
	}

	for v, e := range reasons {
		t.reasons = append(t.reasons, Reason{Value: v, Name: e.name})
		t.byValue[v] = e.name
	}
	sort.Slice(t.reasons, func(i, j int) bool { return t.reasons[i].Value < t.reasons[j].Value })

	for id, e := range subsys {
		t.subsys = append(t.subsys, Subsystem{ID: id, Name: e.name, BaseShift: SubsysShift})
		t.byID[id] = e.name
	}
	sort.Slice(t.subsys, func(i, j int) bool { return t.subsys[i].ID < t.subsys[j].ID })

	return t, nil
}

// Reasons returns the table entries in ascending value order.
func (t *Table) Reasons() []Reason {
	return t.reasons
}

// Subsystems returns the known sub-systems in ascending id order.
func (t *Table) Subsystems() []Subsystem {
	return t.subsys
}

// Resolution is the outcome of resolving one raw code. Name is set when the
// code has an exact symbolic match; Subsystem is set whenever the code's
// high bits match a known sub-system id, known code or not.
type Resolution struct {
	Raw       uint32
	Name      string
	Subsystem string
}

// Known reports whether the raw code has an exact symbolic name.
func (r Resolution) Known() bool {
	return r.Name != ""
}

// Format renders the resolution. Verbose adds the sub-system to known
// reasons; unknown ones always carry it when identified, since it is the
// only information available about them.
func (r Resolution) Format(verbose bool) string {
	if r.Known() {
		if verbose && r.Subsystem != "" {
			return fmt.Sprintf("%s (sub-system: %s)", r.Name, r.Subsystem)
		}
		return r.Name
	}
	if r.Subsystem != "" {
		return fmt.Sprintf("Unknown reason %d (sub-system: %s)", r.Raw, r.Subsystem)
	}
	return fmt.Sprintf("Unknown reason %d", r.Raw)
}

func (r Resolution) String() string {
	return r.Format(false)
}

// Resolve decodes a raw code. Exact matches win over composite decoding so
// a global reason is never misread as a sub-system one; resolution is total
// over all 32-bit inputs.
func (t *Table) Resolve(raw uint32) Resolution {
	res := Resolution{Raw: raw}
	if name, ok := t.byValue[raw]; ok {
		res.Name = name
	}
	if name, ok := t.byID[raw>>SubsysShift]; ok {
		res.Subsystem = name
	}
	return res
}
