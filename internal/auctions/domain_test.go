package auctions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuctionStatus(t *testing.T) {
	for _, s := range []string{"draft", "pending_approval", "scheduled", "live", "ended", "cancelled", "in_transaction", "sold", "deal_failed"} {
		got, err := ParseAuctionStatus(s)
		require.NoError(t, err, s)
		assert.Equal(t, AuctionStatus(s), got)
	}
	_, err := ParseAuctionStatus("LIVE")
	assert.ErrorIs(t, err, ErrInvalidRow)
	_, err = ParseAuctionStatus("paused")
	assert.ErrorIs(t, err, ErrInvalidRow)
}

func TestSortItemsUrgentFirstThenSoonest(t *testing.T) {
	items := []MonitorItem{
		item("a", 500, false),
		item("b", 110, true),
		item("c", 20, false),
		item("d", 110, true),
		item("e", 5, true),
	}
	SortItems(items)
	assert.Equal(t, []string{"e", "b", "d", "c", "a"}, ids(items), "ties keep incoming order")
}

func TestMonitorItemValidate(t *testing.T) {
	ok := item("x", 10, false)
	assert.NoError(t, ok.Validate())

	negative := item("x", -1, false)
	assert.ErrorIs(t, negative.Validate(), ErrInvalidRow)

	mismatch := item("x", 10, false)
	mismatch.Auction.ID = "y"
	assert.ErrorIs(t, mismatch.Validate(), ErrInvalidRow)
}
