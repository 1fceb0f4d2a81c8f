package messages

import (
	"crypto/sha256"
	"testing"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/stretchr/testify/require"
)

func TestContactMessageUnion(t *testing.T) {
	msg := &ContactMessage{
		ContactKind: KindPublicResponse,
		SellerAccepts: &SellerAccepts{
			Offer:             Offer{Price: 4_500_000, Amount: 20_000_000},
			SettlementID:      `deadbeef`,
			AuthAddressSeller: `key`,
			PayinTxID:         `hash`,
		},
	}

	data, err := msg.Marshal()
	require.NoError(t, err)

	parsed, err := ParseContact(data)
	require.NoError(t, err)
	require.Equal(t, KindPublicResponse, parsed.ContactKind)
	require.NotNil(t, parsed.SellerAccepts)
	require.Equal(t, msg.SellerAccepts.Offer, parsed.SellerAccepts.Offer)
	require.Nil(t, parsed.BuyerOffers)
	require.False(t, parsed.Empty())
}

func TestEmptyContactMessageDetected(t *testing.T) {
	data, err := (&ContactMessage{}).Marshal()
	require.NoError(t, err)

	parsed, err := ParseContact(data)
	require.NoError(t, err)
	require.True(t, parsed.Empty())
}

func TestCloseSurvivesRoundTrip(t *testing.T) {
	// an empty struct field must still be present after parsing
	data, err := (&ContactMessage{Close: &Close{}}).Marshal()
	require.NoError(t, err)

	parsed, err := ParseContact(data)
	require.NoError(t, err)
	require.NotNil(t, parsed.Close)
	require.False(t, parsed.Empty())
}

func TestGarbageRejected(t *testing.T) {
	_, err := ParseContact([]byte(`{not json`))
	require.Error(t, err)
	_, err = ParsePublic([]byte(`42`))
	require.Error(t, err)
	_, err = ParseBridgeResponse([]byte(``))
	require.Error(t, err)
}

func TestPubKeyCodecEnforcesSize(t *testing.T) {
	key := make([]byte, domain.PubKeySize)
	key[0] = 0x03
	sum := sha256.Sum256([]byte(`seed`))
	copy(key[1:], sum[:])

	decoded, err := DecodePubKey(EncodePubKey(key))
	require.NoError(t, err)
	require.Equal(t, key, decoded)

	_, err = DecodePubKey(EncodePubKey(key[:16]))
	require.Error(t, err)
	_, err = DecodePubKey(``)
	require.Error(t, err)
}

func TestTxIDCodecEnforcesSize(t *testing.T) {
	txID := make([]byte, domain.TxHashSize)
	txID[31] = 0x01

	decoded, err := DecodeTxID(EncodeTxID(txID))
	require.NoError(t, err)
	require.Equal(t, txID, decoded)

	_, err = DecodeTxID(`00ff`)
	require.Error(t, err)
	_, err = DecodeTxID(`zz`)
	require.Error(t, err)
}

func TestValidOffer(t *testing.T) {
	require.True(t, ValidOffer(Offer{Price: 1, Amount: 1}))
	require.False(t, ValidOffer(Offer{Price: 0, Amount: 1}))
	require.False(t, ValidOffer(Offer{Price: 1, Amount: -5}))
}
