package qrpay

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pkt = time.FixedZone("PKT", 5*3600)

func TestCRC16CCITT_CheckValue(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), CRC16CCITT([]byte("123456789")))
}

func TestEncode_KnownPayloads(t *testing.T) {
	enc := NewEncoder("PK79HABB0164030042945446")

	tests := []struct {
		name   string
		amount string
		expiry time.Time
		want   string
	}{
		{
			"Given 100 expiring 15/10/2025 11:59 When encoded Then payload ends in CF51",
			"100", time.Date(2025, 10, 15, 11, 59, 0, 0, pkt),
			"0002020102120202000424PK79HABB0164030042945446050310007121510202511591004CF51",
		},
		{
			"Given 9999 When encoded Then the amount field length is 04",
			"9999", time.Date(2025, 10, 15, 11, 59, 0, 0, pkt),
			"0002020102120202000424PK79HABB01640300429454460504999907121510202511591004D815",
		},
		{
			"Given 10000 When encoded Then the amount field length is 05",
			"10000", time.Date(2025, 10, 15, 11, 59, 0, 0, pkt),
			"0002020102120202000424PK79HABB016403004294544605051000007121510202511591004BAEE",
		},
		{
			"Given 500 expiring 03/11/2025 When encoded Then payload ends in 7070",
			"500", time.Date(2025, 11, 3, 11, 59, 0, 0, pkt),
			"0002020102120202000424PK79HABB0164030042945446050350007120311202511591004" + "7070",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := enc.Encode(decimal.RequireFromString(tt.amount), tt.expiry)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_DefaultPrefix(t *testing.T) {
	enc := NewEncoder("")
	got := enc.Encode(decimal.NewFromInt(100), time.Date(2025, 10, 15, 11, 59, 0, 0, pkt))
	assert.True(t, strings.HasPrefix(got, "0002020102120202000424PK37HABB0014167901035003"), got)
}

func TestEncode_TruncatesFractionalAmount(t *testing.T) {
	enc := NewEncoder("")
	expiry := time.Date(2025, 9, 30, 23, 59, 0, 0, pkt)

	whole := enc.Encode(decimal.RequireFromString("428"), expiry)
	fractional := enc.Encode(decimal.RequireFromString("428.75"), expiry)

	assert.Equal(t, whole, fractional)
	assert.Contains(t, whole, "0503428")
}

func TestEncode_IsDeterministicAndSelfChecking(t *testing.T) {
	enc := NewEncoder("")
	expiry := time.Date(2025, 9, 27, 13, 7, 0, 0, pkt)
	amount := decimal.RequireFromString("501.00")

	a := enc.Encode(amount, expiry)
	b := enc.Encode(amount, expiry)

	require.Equal(t, a, b)
	assert.Equal(t, Checksum(a[:len(a)-4]), a[len(a)-4:])
	assert.Equal(t, strings.ToUpper(a[len(a)-4:]), a[len(a)-4:])
	assert.True(t, Verify(a))
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	enc := NewEncoder("")
	p := enc.Encode(decimal.NewFromInt(500), time.Date(2025, 9, 27, 13, 7, 0, 0, pkt))
	tampered := strings.Replace(p, "0503500", "0503900", 1)

	assert.False(t, Verify(tampered))
	assert.False(t, Verify("12"))
}

func TestDecode_RoundTrip(t *testing.T) {
	enc := NewEncoder("PK79HABB0164030042945446")
	expiry := time.Date(2025, 10, 15, 11, 59, 0, 0, pkt)

	got, err := Decode(enc.Encode(decimal.NewFromInt(1000), expiry), pkt)

	require.NoError(t, err)
	assert.Equal(t, "PK79HABB0164030042945446", got.MerchantAccount)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got.Expiry.Equal(expiry))
}

func TestDecode_BadChecksum(t *testing.T) {
	_, err := Decode("0002020102120202000424PK79HABB0164030042945446050310007121510202511591004FFFF", pkt)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
