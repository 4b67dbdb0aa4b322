package server

import (
	"net/http"
	"testing"

	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	giftdomain "github.com/ownaday/daybook/internal/gift/domain"
	ledgerdomain "github.com/ownaday/daybook/internal/ledger/domain"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
	transferdomain "github.com/ownaday/daybook/internal/transfer/domain"
)

func TestMapErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid day", err: claimdomain.ErrInvalidDay, want: http.StatusBadRequest},
		{name: "invalid style", err: claimdomain.ErrInvalidStyle, want: http.StatusBadRequest},
		{name: "already claimed", err: claimdomain.ErrAlreadyClaimed, want: http.StatusConflict},
		{name: "exhausted gift code", err: giftdomain.ErrExhaustedCode, want: http.StatusConflict},
		{name: "used transfer code", err: transferdomain.ErrCodeUsed, want: http.StatusConflict},
		{name: "fingerprint mismatch", err: transferdomain.ErrFingerprintMismatch, want: http.StatusConflict},
		{name: "amount mismatch", err: listingdomain.ErrAmountMismatch, want: http.StatusConflict},
		{name: "duplicate payment ref", err: ledgerdomain.ErrDuplicateReference, want: http.StatusConflict},
		{name: "claim not found", err: claimdomain.ErrNotFound, want: http.StatusNotFound},
		{name: "unknown gift code", err: giftdomain.ErrInvalidCode, want: http.StatusNotFound},
		{name: "unknown transfer code", err: transferdomain.ErrInvalidCode, want: http.StatusNotFound},
		{name: "unexpected", err: errFake, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := mapError(tt.err)
			if status != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, status)
			}
		})
	}
}

func TestConflictPayloadCarriesStableCode(t *testing.T) {
	_, payload := mapError(claimdomain.ErrAlreadyClaimed)
	if payload.Type != "conflict" {
		t.Fatalf("expected conflict type, got %s", payload.Type)
	}
	if payload.Message != "already_claimed" {
		t.Fatalf("expected stable conflict code in message, got %s", payload.Message)
	}
}

func TestValidationPayloadShape(t *testing.T) {
	status, payload := mapError(newValidationError("day", "invalid_day", "invalid value"))
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if len(payload.Errors) != 1 || payload.Errors[0].Field != "day" {
		t.Fatalf("expected single field error for day, got %+v", payload.Errors)
	}
}

var errFake = &fakeError{}

type fakeError struct{}

func (*fakeError) Error() string { return "boom" }
