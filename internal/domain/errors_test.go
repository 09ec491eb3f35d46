package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "ledger version conflict",
			err:  ErrLedgerVersionConflict,
			want: true,
		},
		{
			name: "wrapped sequence conflict",
			err:  errors.Join(ErrSequenceVersionConflict, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVersionConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "customer id required", err: ErrCustomerIDRequired, want: KindValidation},
		{name: "patch total mismatch", err: ErrPatchTotalMismatch, want: KindValidation},
		{name: "customer not found", err: ErrCustomerNotFound, want: KindNotFound},
		{name: "wrapped order not found", err: fmt.Errorf("update: %w", ErrOrderNotFound), want: KindNotFound},
		{name: "invalid last order id", err: ErrInvalidLastOrderID, want: KindAllocation},
		{name: "storage unavailable", err: Unavailable("get ledger", errors.New("dial tcp")), want: KindStorageUnavailable},
		{name: "malformed quantity", err: ErrMalformedQuantity, want: KindRender},
		{name: "total mismatch", err: ErrTotalMismatch, want: KindRender},
		{name: "email delivery", err: fmt.Errorf("send: %w", ErrEmailDelivery), want: KindEmailDelivery},
		{name: "ledger conflict", err: ErrLedgerVersionConflict, want: KindConflict},
		{name: "deadline", err: FromContext(context.DeadlineExceeded), want: KindTimeout},
		{name: "unknown", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "storage", err: Unavailable("scan", errors.New("timeout")), want: true},
		{name: "conflict", err: ErrLedgerVersionConflict, want: true},
		{name: "allocation race", err: ErrAllocationRace, want: true},
		{name: "invalid last order id", err: ErrInvalidLastOrderID, want: false},
		{name: "validation", err: ErrOrderIDRequired, want: false},
		{name: "not found", err: ErrLedgerNotFound, want: false},
		{name: "timeout", err: FromContext(fmt.Errorf("wrap: %w", context.DeadlineExceeded)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable("save ledger", cause)

	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected original cause to be preserved, got %v", err)
	}
	if Unavailable("noop", nil) != nil {
		t.Fatal("expected nil for nil cause")
	}
}

func TestFromContextLeavesOtherErrors(t *testing.T) {
	err := errors.New("plain")
	if got := FromContext(err); got != err {
		t.Fatalf("expected error to be returned unchanged, got %v", got)
	}
	if got := FromContext(context.Canceled); errors.Is(got, ErrTimeout) {
		t.Fatal("cancellation must not be reported as timeout")
	}
}
