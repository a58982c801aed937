package domain

import (
	"testing"

	"wallet-topup-service/pkg/xerrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBankSmsWebhookRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     BankSmsWebhookRequest
		wantErr bool
	}{
		{"Given blank sms text When validated Then rejected", BankSmsWebhookRequest{SmsText: "  "}, true},
		{"Given a non uuid user id When validated Then rejected", BankSmsWebhookRequest{SmsText: "PKR 1", UserID: "abc"}, true},
		{"Given a uuid user id When validated Then accepted", BankSmsWebhookRequest{SmsText: "PKR 1", UserID: "5f0c3b7e-8d3a-4c51-9d7e-2a6f1f0e9b11"}, false},
		{"Given only sms text When validated Then accepted", BankSmsWebhookRequest{SmsText: "PKR 1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTopupRequest_Validate(t *testing.T) {
	assert.NoError(t, (&TopupRequest{Amount: decimal.NewFromInt(100)}).Validate())
	assert.ErrorIs(t, (&TopupRequest{Amount: decimal.Zero}).Validate(), xerrors.ErrInvalidAmount)
	assert.ErrorIs(t, (&TopupRequest{Amount: decimal.RequireFromString("10.5")}).Validate(), xerrors.ErrInvalidAmount)
}

func TestNewPagedResult(t *testing.T) {
	p := NewPageRequest(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	res := NewPagedResult[int](nil, 0, NewPageRequest(1, 20))
	assert.NotNil(t, res.Items)
	assert.Equal(t, 0, res.TotalPages)

	res = NewPagedResult([]int{1, 2}, 41, NewPageRequest(3, 20))
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 40, NewPageRequest(3, 20).Offset())
}
