package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeBuckets(t *testing.T) {
	require.Equal(t, Range{Lower: 5, Upper: 10}, RangeOf(Range5_10))
	require.Equal(t, Range{Lower: 100, Upper: 250}, RangeOf(Range100_250))
	require.Equal(t, Range{}, RangeOf(RangeUnknown))

	require.True(t, ValidRangeType(Range0_1))
	require.False(t, ValidRangeType(RangeUnknown))
	require.False(t, ValidRangeType(RangeType(7)))
}

func TestIsSubRange(t *testing.T) {
	outer := RangeOf(Range5_10)
	require.True(t, IsSubRange(outer, Range{Lower: 6, Upper: 9}))
	require.True(t, IsSubRange(outer, Range{Lower: 5, Upper: 10}))
	require.False(t, IsSubRange(outer, Range{Lower: 4, Upper: 9}))
	require.False(t, IsSubRange(outer, Range{Lower: 6, Upper: 11}))
	require.False(t, IsSubRange(outer, Range{Lower: 9, Upper: 6}))
}

func TestStatePhases(t *testing.T) {
	require.False(t, StateOfferSent.PostAcceptance())
	require.False(t, StateWaitPayinInfo.PostAcceptance())
	require.True(t, StateSentPayinInfo.PostAcceptance())
	require.True(t, StateWaitSellerSign.PostAcceptance())

	require.False(t, StateSentPayinInfo.SignPhase())
	require.True(t, StateWaitVerification.SignPhase())
	require.False(t, StateBlacklisted.SignPhase())
}

func TestSwitchSide(t *testing.T) {
	require.Equal(t, SideSell, SwitchSide(SideBuy))
	require.Equal(t, SideBuy, SwitchSide(SideSell))
	require.Equal(t, SideUnknown, SwitchSide(SideUnknown))
}

func TestOfferTermsEqual(t *testing.T) {
	a := Offer{OurSide: SideBuy, Amount: 10, Price: 20, WalletID: `w1`}
	b := a
	b.WalletID = `w2` // wallet choice is local, not a term
	require.True(t, a.TermsEqual(b))

	b.Price = 21
	require.False(t, a.TermsEqual(b))
}

func TestValiditySharedAcrossHandles(t *testing.T) {
	v := NewValidity()
	h1 := v.Handle()
	h2 := v.Handle()
	require.True(t, h1.Valid())

	v.Revoke()
	require.False(t, h1.Valid())
	require.False(t, h2.Valid())
	require.False(t, Handle{}.Valid())
}

func TestDealAuthAddresses(t *testing.T) {
	pubKey := make([]byte, PubKeySize)
	pubKey[0] = 0x02

	seller := &Deal{Side: SideSell, OurAuthAddress: `ours`, CpPubKey: pubKey}
	require.True(t, seller.IsRequestor())
	require.Equal(t, `ours`, seller.AuthAddress(true))
	require.Equal(t, AddressFromPubKey(pubKey), seller.AuthAddress(false))
	require.Equal(t, `ours`, seller.RequestorAuthAddress())

	buyer := &Deal{Side: SideBuy, OurAuthAddress: `ours`, CpPubKey: pubKey}
	require.False(t, buyer.IsRequestor())
	require.Equal(t, `ours`, buyer.AuthAddress(false))
	require.Equal(t, AddressFromPubKey(pubKey), buyer.RequestorAuthAddress())
}

func TestValidSettlementID(t *testing.T) {
	require.True(t, ValidSettlementID(`00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff`))
	require.False(t, ValidSettlementID(`00112233`))
	require.False(t, ValidSettlementID(``))
	require.False(t, ValidSettlementID(`zz112233445566778899aabbccddeeff00112233445566778899aabbccddeezz`))
}
