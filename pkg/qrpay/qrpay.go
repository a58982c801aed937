// Package qrpay renders the bank QR payload scanned by the payer's banking app.
//
// The payload is a run of tag/length/value fields:
//
//	00 02 "02" | 01 02 "12" | 02 02 "00" | 04 nn <merchant account>
//	05 nn <amount, integer digits> | 07 12 <expiry ddMMyyyyHHmm> | 10 04 <crc16>
//
// The checksum covers every byte before it, including the "1004" header.
package qrpay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultMerchantAccount = "PK37HABB0014167901035003"

	tagPayloadFormat = "00"
	tagInitiation    = "01"
	tagService       = "02"
	tagMerchant      = "04"
	tagAmount        = "05"
	tagExpiry        = "07"
	tagChecksum      = "10"

	expiryLayout   = "020120061504"
	checksumHeader = tagChecksum + "04"
)

var ErrMalformedPayload = errors.New("malformed qr payload")

type Encoder struct {
	prefix string
}

// NewEncoder builds an encoder for a merchant account. An empty account
// selects DefaultMerchantAccount.
func NewEncoder(merchantAccount string) *Encoder {
	if merchantAccount == "" {
		merchantAccount = DefaultMerchantAccount
	}
	prefix := field(tagPayloadFormat, "02") +
		field(tagInitiation, "12") +
		field(tagService, "00") +
		field(tagMerchant, merchantAccount)
	return &Encoder{prefix: prefix}
}

// Encode is pure: the same amount and expiry always give the same payload.
// Fractional amounts are truncated; the banking app only reads integer digits.
// The expiry is rendered in its own location.
func (e *Encoder) Encode(amount decimal.Decimal, expiry time.Time) string {
	var b strings.Builder
	b.WriteString(e.prefix)
	b.WriteString(field(tagAmount, amount.Truncate(0).String()))
	b.WriteString(field(tagExpiry, expiry.Format(expiryLayout)))
	b.WriteString(checksumHeader)
	b.WriteString(Checksum(b.String()))
	return b.String()
}

// Decoded holds the variable fields of a payload.
type Decoded struct {
	MerchantAccount string
	Amount          decimal.Decimal
	Expiry          time.Time
}

// Decode walks the payload fields and checks the trailing checksum. The
// expiry is interpreted in loc.
func Decode(payload string, loc *time.Location) (*Decoded, error) {
	if !Verify(payload) {
		return nil, fmt.Errorf("%w: checksum", ErrMalformedPayload)
	}
	if loc == nil {
		loc = time.UTC
	}

	out := &Decoded{}
	body := payload[:len(payload)-4]
	for pos := 0; pos < len(body); {
		if pos+4 > len(body) {
			return nil, fmt.Errorf("%w: truncated field at %d", ErrMalformedPayload, pos)
		}
		tag := body[pos : pos+2]
		n, err := strconv.Atoi(body[pos+2 : pos+4])
		if err != nil {
			return nil, fmt.Errorf("%w: bad length at %d", ErrMalformedPayload, pos)
		}
		pos += 4
		if tag == tagChecksum {
			break
		}
		if pos+n > len(body) {
			return nil, fmt.Errorf("%w: field %s overruns payload", ErrMalformedPayload, tag)
		}
		value := body[pos : pos+n]
		pos += n

		switch tag {
		case tagMerchant:
			out.MerchantAccount = value
		case tagAmount:
			amt, err := decimal.NewFromString(value)
			if err != nil {
				return nil, fmt.Errorf("%w: amount %q", ErrMalformedPayload, value)
			}
			out.Amount = amt
		case tagExpiry:
			exp, err := time.ParseInLocation(expiryLayout, value, loc)
			if err != nil {
				return nil, fmt.Errorf("%w: expiry %q", ErrMalformedPayload, value)
			}
			out.Expiry = exp
		}
	}
	return out, nil
}

// Verify reports whether the last four characters are the checksum of the rest.
func Verify(payload string) bool {
	if len(payload) < 4 {
		return false
	}
	body, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	return Checksum(body) == sum
}

// Checksum renders CRC16CCITT(data) as four uppercase hex digits.
func Checksum(data string) string {
	return fmt.Sprintf("%04X", CRC16CCITT([]byte(data)))
}

// CRC16CCITT uses polynomial 0x1021, initial value 0xFFFF, MSB first, no
// reflection and no final xor.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func field(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}
