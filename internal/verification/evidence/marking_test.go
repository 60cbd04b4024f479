package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkingCode(t *testing.T) {
	t.Run("plain code extracts gtin and serial", func(t *testing.T) {
		code, reason := ParseMarkingCode("010460714435317521SERIAL123")
		require.Empty(t, reason)
		assert.Equal(t, "04607144353175", code.GTIN)
		assert.Equal(t, "SERIAL123", code.Serial)
		assert.True(t, code.ChecksumValid)
	})

	t.Run("bracketed identifiers are stripped", func(t *testing.T) {
		code, reason := ParseMarkingCode("(01)04607144353175(21)SERIAL123(91)EE06")
		require.Empty(t, reason)
		assert.Equal(t, "04607144353175", code.GTIN)
		assert.Equal(t, "SERIAL123", code.Serial)
	})

	t.Run("group separator ends the serial", func(t *testing.T) {
		code, reason := ParseMarkingCode("010460714435317521ABC\x1d91EE06\x1d92xyz")
		require.Empty(t, reason)
		assert.Equal(t, "ABC", code.Serial)
	})

	t.Run("textual separator spelling", func(t *testing.T) {
		code, reason := ParseMarkingCode("010460714435317521ABCDEF<GS>91EE06")
		require.Empty(t, reason)
		assert.Equal(t, "ABCDEF", code.Serial)
	})

	t.Run("invalid check digit is reported not rejected", func(t *testing.T) {
		code, reason := ParseMarkingCode("010460714435317621SERIAL123")
		require.Empty(t, reason)
		assert.Equal(t, "04607144353176", code.GTIN)
		assert.False(t, code.ChecksumValid)
	})

	cases := map[string]string{
		"too short without serial": "0104607144353175",
		"missing gtin marker":      "99046071443531752100SERIAL",
		"missing serial marker":    "0104607144353175XXSERIAL123",
		"empty serial":             "010460714435317521\x1d91EE06EE06",
		"blank":                    "   ",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, reason := ParseMarkingCode(raw)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestValidGTINChecksum(t *testing.T) {
	assert.True(t, ValidGTINChecksum("04607144353175"))
	assert.True(t, ValidGTINChecksum("00012345678905"))
	assert.False(t, ValidGTINChecksum("04607144353176"))
	assert.False(t, ValidGTINChecksum("0460714435317"))
	assert.False(t, ValidGTINChecksum("0460714435317A"))
}
