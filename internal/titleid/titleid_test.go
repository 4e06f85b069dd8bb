package titleid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Hex(t *testing.T) {
	tests := []struct {
		num  uint64
		want string
	}{
		{0x01004D300C5AE000, "01004D300C5AE000"},
		{0x01007E3006DDA000, "01007E3006DDA000"},
		{0x01006B601380E000, "01006B601380E000"},
		{0x1, "0000000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			id := ID(tt.num)
			assert.Equal(t, tt.want, id.Hex())
			assert.Equal(t, tt.want, id.String())
		})
	}
}

func TestParseHex(t *testing.T) {
	id, err := ParseHex("01006b601380e000")
	require.NoError(t, err)
	assert.Equal(t, ID(0x01006B601380E000), id)
	assert.Equal(t, "01006B601380E000", id.Hex())

	for _, bad := range []string{"Garbage", "1", "FFFFFFFFFFFFFFFFa", "", "0100ZZ601380E000"} {
		t.Run(bad, func(t *testing.T) {
			_, err := ParseHex(bad)
			assert.Error(t, err)
		})
	}
}
