package datetime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Date(t *testing.T) {
	n := Default()

	tests := []struct {
		input string
		want  string
	}{
		{"2018-03-14", "2018-03-14"},
		{"3/14/2018", "2018-03-14"},
		{"03/14/2018", "2018-03-14"},
		{"2018/03/14", "2018-03-14"},
		{"Mar 14, 2018", "2018-03-14"},
		{"2018-03-14 00:00:00", "2018-03-14"},
		{"2018-03-14 10:22:00 -07:00", "2018-03-14"},
		{"  2018-03-14  ", "2018-03-14"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := n.Normalize(tt.input, Date, true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Time(t *testing.T) {
	n := Default()

	tests := []struct {
		name     string
		input    string
		knownLab bool
		want     string
	}{
		{"offset kept", "10:15:00 -07:00", true, "10:15:00-07:00"},
		{"compact offset", "10:15:00 -0700", false, "10:15:00-07:00"},
		{"other offset kept", "10:15:00 +01:00", true, "10:15:00+01:00"},
		{"naive known lab gets offset", "10:15:00", true, "10:15:00-07:00"},
		{"naive unknown lab stays naive", "10:15:00", false, "10:15:00"},
		{"midnight stays naive", "00:00:00", true, "00:00:00"},
		{"short clock", "9:05", true, "09:05:00-07:00"},
		{"twelve hour", "2:30:00 PM", true, "14:30:00-07:00"},
		{"from full timestamp", "2018-03-14 10:22:00 -07:00", true, "10:22:00-07:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.input, Time, tt.knownLab)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_DateTime(t *testing.T) {
	n := Default()

	got, err := n.Normalize("2018-03-14 10:22:00 -07:00", DateTime, false)
	require.NoError(t, err)
	assert.Equal(t, "2018-03-14 10:22:00 -07:00", got)

	got, err = n.Normalize("2018-03-14T17:22:00Z", DateTime, true)
	require.NoError(t, err)
	assert.Equal(t, "2018-03-14 17:22:00 +00:00", got)

	got, err = n.Normalize("2018-03-14 10:22:00", DateTime, true)
	require.NoError(t, err)
	assert.Equal(t, "2018-03-14 10:22:00 -07:00", got)

	got, err = n.Normalize("2018-03-14 10:22:00", DateTime, false)
	require.NoError(t, err)
	assert.Equal(t, "2018-03-14 10:22:00", got)
}

func TestNormalize_DateOnlyNeverGetsOffset(t *testing.T) {
	n := Default()
	got, err := n.Normalize("2018-03-14", DateTime, true)
	require.NoError(t, err)
	assert.Equal(t, "2018-03-14 00:00:00", got)
}

func TestNormalize_OffsetPreservesInstant(t *testing.T) {
	n := Default()
	in := "2018-03-14 10:22:00 +02:00"

	a, _, err := n.Parse(in, true)
	require.NoError(t, err)

	out, err := n.Normalize(in, DateTime, true)
	require.NoError(t, err)
	b, _, err := n.Parse(out, true)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
}

func TestNormalize_Idempotent(t *testing.T) {
	n := Default()
	for _, kind := range []Kind{Date, Time, DateTime} {
		first, err := n.Normalize("2018-03-14 10:22:00", kind, true)
		require.NoError(t, err)
		second, err := n.Normalize(first, kind, true)
		require.NoError(t, err)
		assert.Equal(t, first, second, kind.String())
	}
}

func TestNormalize_ParseError(t *testing.T) {
	n := Default()
	for _, input := range []string{"", "   ", "yesterday", "25:99:00", "2018-13-40"} {
		_, err := n.Normalize(input, Date, true)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, input)
		assert.Equal(t, input, pe.Value)
		assert.Equal(t, Date, pe.Kind)
	}
}

func TestContainerDate(t *testing.T) {
	n := Default()

	got, err := n.ContainerDate("2018-03-14 23:30:00 -07:00")
	require.NoError(t, err)
	assert.Equal(t, "180314", got)

	got, err = n.ContainerDate("3/14/2018")
	require.NoError(t, err)
	assert.Equal(t, "180314", got)

	_, err = n.ContainerDate("not a date")
	assert.Error(t, err)
}

func TestNew_CustomOffset(t *testing.T) {
	n, err := New("-08:00")
	require.NoError(t, err)
	got, err := n.Normalize("10:15:00", Time, true)
	require.NoError(t, err)
	assert.Equal(t, "10:15:00-08:00", got)

	_, err = New("PST")
	assert.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "date", Date.String())
	assert.Equal(t, "time", Time.String())
	assert.Equal(t, "datetime", DateTime.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
