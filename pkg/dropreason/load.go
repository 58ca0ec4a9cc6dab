package dropreason

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/retis-org/drdump/pkg/btf"
)

// Reason enums registered by sub-systems. Unlike CoreEnum these live in
// modules (mac80211, openvswitch) and are absent from kernels built without
// them, so missing ones are skipped rather than fatal.
var subsysEnums = []string{"mac80211_drop_reason", "ovs_drop_reason"}

// Load builds the reason table from a parsed BTF graph: the core enum
// first, then whatever sub-system reason enums the blob declares, then the
// sub-system id enum.
func Load(g *btf.Graph) (*Table, error) {
	core, err := lookupEnum(g, CoreEnum)
	if err != nil {
		if errors.Is(err, btf.ErrNotFound) {
			return nil, fmt.Errorf("drop reasons are not supported by this kernel: %w", err)
		}
		return nil, err
	}

	groups := [][]Member{core}
	for _, name := range subsysEnums {
		members, err := lookupEnum(g, name)
		if err != nil {
			if errors.Is(err, btf.ErrNotFound) {
				log.Debugf("no %s enum in this blob, skipping", name)
				continue
			}
			return nil, err
		}
		groups = append(groups, members)
	}

	subsys, err := lookupEnum(g, SubsysEnum)
	if err != nil {
		if !errors.Is(err, btf.ErrNotFound) {
			return nil, err
		}
		log.Debugf("no %s enum in this blob, composite codes will not be classified", SubsysEnum)
	} else {
		groups = append(groups, subsys)
	}

	t, err := Build(groups...)
	if err != nil {
		return nil, err
	}

	if n := len(t.Subsystems()); n > knownSubsystems {
		log.Infof("found %d drop reason sub-systems, more than the %d known of; "+
			"resolution into a sub-system still works for all of them", n, knownSubsystems)
	}

	return t, nil
}

func lookupEnum(g *btf.Graph, name string) ([]Member, error) {
	raw, err := g.FindEnum(name)
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(raw))
	for _, m := range raw {
		v, err := m.Value32()
		if err != nil {
			return nil, fmt.Errorf("enum %s: %w", name, err)
		}
		members = append(members, Member{Name: m.Name, Value: v})
	}

	return members, nil
}
