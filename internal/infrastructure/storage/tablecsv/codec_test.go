package tablecsv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

func TestEncode_Layout(t *testing.T) {
	tb := table.New("SRI_c_cf_trawl", table.KeyUnit, "bycatch", "noise")
	tb.SetAttr(table.AttrScenario, "c")
	tb.SetAttr(table.AttrKind, table.KindReduced)
	tb.Set(101, "bycatch", 0.25)
	tb.Set(100, "bycatch", 1)
	tb.Set(100, "noise", 2.5)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tb))
	assert.Equal(t,
		"#attr,kind,SRI\n"+
			"#attr,scenario,c\n"+
			"unit_id,bycatch,noise\n"+
			"100,1,2.5\n"+
			"101,0.25,\n",
		buf.String())
}

func TestDecode_PreservesNullsAndAttributes(t *testing.T) {
	src := "#attr,activity_code,cf_trawl\nunit_id,a,b\n7,,3\n9,1e-3,\n"
	tb, err := Decode(strings.NewReader(src), "t")
	require.NoError(t, err)

	assert.Equal(t, "t", tb.Name)
	assert.Equal(t, table.KeyUnit, tb.KeyName)
	assert.Equal(t, []string{"a", "b"}, tb.Columns())
	assert.Equal(t, "cf_trawl", tb.Attr(table.AttrActivity))
	assert.Equal(t, []int64{7, 9}, tb.Keys())

	_, ok := tb.Get(7, "a")
	assert.False(t, ok)
	v, ok := tb.Get(9, "a")
	require.True(t, ok)
	assert.Equal(t, 0.001, v)
}

func TestRoundTrip_EmptyTable(t *testing.T) {
	tb := table.New("empty", table.KeyFeature, "RI")
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tb))

	got, err := Decode(&buf, "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, []string{"RI"}, got.Columns())
	assert.Equal(t, table.KeyFeature, got.KeyName)
}

func TestDecode_Corrupt(t *testing.T) {
	for name, src := range map[string]string{
		"empty":       "",
		"bad key":     "unit_id,a\nx,1\n",
		"bad value":   "unit_id,a\n1,abc\n",
		"short row":   "unit_id,a,b\n1,2\n",
		"bad attr":    "#attr,only\nunit_id\n",
		"missing key": ",a\n1,2\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(src), "t")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeTableCorrupt))
		})
	}
}
