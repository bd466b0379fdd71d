package unitmask_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/unitmask"
)

func mesi() *opstart.UnitMask {
	return &opstart.UnitMask{
		Mode:    opstart.UnitMaskBitmask,
		Default: 0x0f,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x08, Description: "(M)odified cache state"},
			{Value: 0x04, Description: "(E)xclusive cache state"},
			{Value: 0x02, Description: "(S)hared cache state"},
			{Value: 0x01, Description: "(I)nvalid cache state"},
			{Value: 0x0f, Description: "all MESI cache state"},
		},
	}
}

func prefetch() *opstart.UnitMask {
	return &opstart.UnitMask{
		Mode: opstart.UnitMaskExclusive,
		Entries: []opstart.UnitMaskEntry{
			{Value: 0x00, Description: "prefetch NTA"},
			{Value: 0x01, Description: "prefetch T1"},
			{Value: 0x02, Description: "prefetch T2"},
			{Value: 0x03, Description: "weakly-ordered stores"},
		},
	}
}

func TestBitmask_RoundTripAllSubsets(t *testing.T) {
	um := mesi()
	n := len(um.Entries) - 1

	for bits := 0; bits < 1<<n; bits++ {
		want := make([]bool, len(um.Entries))
		for i := 0; i < n; i++ {
			want[i] = bits&(1<<i) != 0
		}
		// Selecting every individual bit is indistinguishable
		// from selecting "all".
		want[n] = bits == 1<<n-1

		mask := unitmask.Resolve(um, want)
		got := unitmask.Selections(um, mask)
		assert.Equal(t, want[:n], got[:n], "subset %04b", bits)
		assert.Equal(t, want[n], got[n], "final entry for subset %04b", bits)
	}
}

func TestBitmask_FinalEntryComparedByEquality(t *testing.T) {
	um := mesi()

	got := unitmask.Selections(um, 0x0f)
	assert.Equal(t, []bool{true, true, true, true, true}, got)

	got = unitmask.Selections(um, 0x0e)
	assert.Equal(t, []bool{true, true, true, false, false}, got)
}

func TestBitmask_FinalEntryContributesNothing(t *testing.T) {
	um := mesi()
	assert.Equal(t, uint32(0), unitmask.Resolve(um, []bool{false, false, false, false, true}))
	assert.Equal(t, uint32(0x08), unitmask.Resolve(um, []bool{true, false, false, false, true}))
}

func TestExclusive_RoundTripEachIndex(t *testing.T) {
	um := prefetch()

	for i := range um.Entries {
		sel := make([]bool, len(um.Entries))
		sel[i] = true

		mask := unitmask.Resolve(um, sel)
		assert.Equal(t, um.Entries[i].Value, mask)

		got := unitmask.Selections(um, mask)
		assert.Equal(t, sel, got, "index %d", i)
	}
}

func TestExclusive_NothingSelected(t *testing.T) {
	assert.Equal(t, uint32(0), unitmask.Resolve(prefetch(), nil))
}

func TestMandatory_AlwaysDefault(t *testing.T) {
	um := &opstart.UnitMask{Mode: opstart.UnitMaskMandatory, Default: 0x07}

	assert.Equal(t, uint32(0x07), unitmask.Resolve(um, nil))
	assert.Equal(t, uint32(0x07), unitmask.Resolve(um, []bool{true, true, true}))
	assert.Empty(t, unitmask.Selections(um, 0x07))
	assert.False(t, unitmask.Selectable(um))
}

func TestEffective(t *testing.T) {
	mandatory := &opstart.UnitMask{Mode: opstart.UnitMaskMandatory, Default: 0x0f}

	tests := []struct {
		name    string
		um      *opstart.UnitMask
		stored  uint32
		want    uint32
		wantErr bool
	}{
		{name: "nil", um: nil, stored: 0x30, want: 0},
		{name: "mandatory ignores stored", um: mandatory, stored: 0x03, want: 0x0f},
		{name: "bitmask subset", um: mesi(), stored: 0x0c, want: 0x0c},
		{name: "bitmask all", um: mesi(), stored: 0x0f, want: 0x0f},
		{name: "bitmask foreign bits", um: mesi(), stored: 0x30, wantErr: true},
		{name: "bitmask partly foreign", um: mesi(), stored: 0x18, wantErr: true},
		{name: "exclusive entry", um: prefetch(), stored: prefetch().Entries[1].Value, want: prefetch().Entries[1].Value},
		{name: "exclusive not an entry", um: prefetch(), stored: 0xf0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unitmask.Effective(tt.um, tt.stored)
			if tt.wantErr {
				require.ErrorIs(t, err, unitmask.ErrUnreachable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNilSpec(t *testing.T) {
	assert.Equal(t, uint32(0), unitmask.Resolve(nil, []bool{true}))
	assert.Nil(t, unitmask.Selections(nil, 0xff))
	assert.False(t, unitmask.Selectable(nil))
	require.NoError(t, unitmask.Validate(nil))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		um      *opstart.UnitMask
		wantErr bool
	}{
		{name: "mesi", um: mesi()},
		{name: "exclusive", um: prefetch()},
		{name: "mandatory", um: &opstart.UnitMask{Mode: opstart.UnitMaskMandatory, Default: 1}},
		{
			name: "final entry not the union",
			um: &opstart.UnitMask{Mode: opstart.UnitMaskBitmask, Entries: []opstart.UnitMaskEntry{
				{Value: 0x1}, {Value: 0x2}, {Value: 0x7},
			}},
			wantErr: true,
		},
		{
			name:    "empty exclusive",
			um:      &opstart.UnitMask{Mode: opstart.UnitMaskExclusive},
			wantErr: true,
		},
		{
			name: "too many entries",
			um: &opstart.UnitMask{Mode: opstart.UnitMaskExclusive, Entries: make([]opstart.UnitMaskEntry, unitmask.MaxEntries+1)},
			wantErr: true,
		},
		{
			name: "zero bitmask entry",
			um: &opstart.UnitMask{Mode: opstart.UnitMaskBitmask, Entries: []opstart.UnitMaskEntry{
				{Value: 0x0}, {Value: 0x1}, {Value: 0x1},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := unitmask.Validate(tt.um)
			if tt.wantErr {
				require.ErrorIs(t, err, unitmask.ErrInvalid)
				return
			}
			require.NoError(t, err)
		})
	}
}
