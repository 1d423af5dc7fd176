package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/provider"
)

func paidSession() *provider.Session {
	return &provider.Session{
		ID:               "cs_1",
		Status:           provider.SessionStatusComplete,
		PaymentStatus:    provider.PaymentStatusPaid,
		PaymentReference: "pay_123",
		AmountTotal:      2000,
		Currency:         "sar",
		ClientReference:  "shop-1",
	}
}

func TestVerify_Paid(t *testing.T) {
	prov := new(mockProvider)
	prov.On("GetSession", mock.Anything, "cs_1").Return(paidSession(), nil)

	conf, err := NewVerifier(prov, newTestLogger()).Verify(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, &domain.PaymentConfirmation{
		ProviderSessionID: "cs_1",
		PaymentReference:  "pay_123",
		AmountAuthorized:  2000,
		Currency:          "sar",
		Status:            domain.PaymentStatusPaid,
		ClientReference:   "shop-1",
	}, conf)
}

func TestVerify_Idempotent(t *testing.T) {
	prov := new(mockProvider)
	prov.On("GetSession", mock.Anything, "cs_1").Return(paidSession(), nil)
	v := NewVerifier(prov, newTestLogger())

	first, err := v.Verify(context.Background(), "cs_1")
	require.NoError(t, err)
	second, err := v.Verify(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	prov.AssertNumberOfCalls(t, "GetSession", 2)
}

func TestVerify_MissingSession(t *testing.T) {
	prov := new(mockProvider)
	_, err := NewVerifier(prov, newTestLogger()).Verify(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrMissingSession)
	prov.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything)
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name    string
		session *provider.Session
		err     error
		want    error
	}{
		{
			name: "unknown session",
			err:  provider.ErrSessionNotFound,
			want: domain.ErrSessionNotFound,
		},
		{
			name: "transport error",
			err:  errors.New("connection reset"),
			want: domain.ErrProviderUnavailable,
		},
		{
			name: "wrapped unavailable",
			err:  errors.Join(provider.ErrUnavailable, errors.New("503")),
			want: domain.ErrProviderUnavailable,
		},
		{
			name:    "expired",
			session: &provider.Session{ID: "cs_1", Status: provider.SessionStatusExpired, PaymentStatus: provider.PaymentStatusUnpaid},
			want:    domain.ErrSessionExpired,
		},
		{
			name:    "still open",
			session: &provider.Session{ID: "cs_1", Status: provider.SessionStatusOpen, PaymentStatus: provider.PaymentStatusUnpaid},
			want:    domain.ErrPaymentIncomplete,
		},
		{
			name:    "complete but unpaid",
			session: &provider.Session{ID: "cs_1", Status: provider.SessionStatusComplete, PaymentStatus: provider.PaymentStatusUnpaid},
			want:    domain.ErrPaymentIncomplete,
		},
		{
			name:    "paid without reference",
			session: &provider.Session{ID: "cs_1", Status: provider.SessionStatusComplete, PaymentStatus: provider.PaymentStatusPaid},
			want:    domain.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := new(mockProvider)
			if tt.session != nil {
				prov.On("GetSession", mock.Anything, "cs_1").Return(tt.session, nil)
			} else {
				prov.On("GetSession", mock.Anything, "cs_1").Return(nil, tt.err)
			}

			conf, err := NewVerifier(prov, newTestLogger()).Verify(context.Background(), "cs_1")
			assert.Nil(t, conf)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
