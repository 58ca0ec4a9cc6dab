package dropreason

import (
	"encoding/binary"
	"testing"

	cbtf "github.com/cilium/ebpf/btf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retis-org/drdump/pkg/btf"
)

func enumType(name string, members []Member) *cbtf.Enum {
	vals := make([]cbtf.EnumValue, len(members))
	for i, m := range members {
		vals[i] = cbtf.EnumValue{Name: m.Name, Value: uint64(m.Value)}
	}
	return &cbtf.Enum{Name: name, Size: 4, Values: vals}
}

// marshalGraph builds a real BTF blob out of the given enums with the
// cilium/ebpf encoder and runs it through our parser, so Load is tested
// against wire data produced by an independent implementation.
func marshalGraph(t *testing.T, enums ...*cbtf.Enum) *btf.Graph {
	t.Helper()

	types := make([]cbtf.Type, len(enums))
	for i, e := range enums {
		types[i] = e
	}

	b, err := cbtf.NewBuilder(types)
	require.NoError(t, err)
	blob, err := b.Marshal(nil, &cbtf.MarshalOptions{Order: binary.LittleEndian})
	require.NoError(t, err)

	g, err := btf.Parse(blob)
	require.NoError(t, err)
	return g
}

func TestLoad(t *testing.T) {
	g := marshalGraph(t,
		enumType(CoreEnum, coreMembers()),
		enumType("mac80211_drop_reason", mac80211Members()),
		enumType(SubsysEnum, subsysMembers()),
	)

	tbl, err := Load(g)
	require.NoError(t, err)

	assert.Len(t, tbl.Reasons(), 7)
	assert.Len(t, tbl.Subsystems(), 5)
	assert.Equal(t, "RX_DROP_U_REPLAY", tbl.Resolve(65538).Name)
	assert.Equal(t, "SKB_CONSUMED", tbl.Resolve(1).Name)
}

// Kernels without mac80211 or openvswitch simply lack those enums; only
// the core one is mandatory.
func TestLoadCoreOnly(t *testing.T) {
	g := marshalGraph(t, enumType(CoreEnum, coreMembers()))

	tbl, err := Load(g)
	require.NoError(t, err)

	assert.Len(t, tbl.Reasons(), 4)
	assert.Empty(t, tbl.Subsystems())
	assert.Equal(t, "Unknown reason 65538", tbl.Resolve(65538).String())
}

func TestLoadNoDropReasons(t *testing.T) {
	g := marshalGraph(t, enumType("some_other_enum", []Member{{Name: "A", Value: 0}}))

	_, err := Load(g)
	require.ErrorIs(t, err, btf.ErrNotFound)
	assert.ErrorContains(t, err, "not supported")
}

func TestLoadInconsistentSchema(t *testing.T) {
	g := marshalGraph(t, enumType(CoreEnum, []Member{
		{Name: "SKB_DROP_REASON_NO_SOCKET", Value: 3},
		{Name: "SKB_DROP_REASON_PKT_TOO_SMALL", Value: 3},
	}))

	_, err := Load(g)
	require.ErrorIs(t, err, ErrDuplicateValue)
}
