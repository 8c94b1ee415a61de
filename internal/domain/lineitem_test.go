package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineItem(t *testing.T) {
	for _, raw := range []string{"balances", "assets", "liabilities"} {
		item, err := ParseLineItem(raw)
		require.NoError(t, err)
		assert.Equal(t, LineItem(raw), item)
	}
}

func TestParseLineItem_Unknown(t *testing.T) {
	_, err := ParseLineItem("foobar")
	require.Error(t, err)

	var unknownErr *UnknownLineItemError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "foobar", unknownErr.Item)
}

func TestDedupeItems(t *testing.T) {
	out := DedupeItems([]string{"balances", "assets", "balances", "assets", "balances"})
	assert.Equal(t, []string{"balances", "assets"}, out)
}

func TestDedupeItems_PreservesUnknownNames(t *testing.T) {
	// De-duplication is pure set semantics; validity is decided later,
	// per item.
	out := DedupeItems([]string{"foobar", "foobar", "balances"})
	assert.Equal(t, []string{"foobar", "balances"}, out)
}
