package requestctx

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestCallerFromContextRoundTrip(t *testing.T) {
	caller := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ctx := WithCaller(context.Background(), caller)
	got, ok := CallerFromContext(ctx)
	if !ok {
		t.Fatal("expected caller to be present")
	}
	if got != caller {
		t.Fatalf("CallerFromContext = %s, want %s", got.Hex(), caller.Hex())
	}
}

func TestCallerFromContextAbsent(t *testing.T) {
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Fatal("expected no caller in fresh context")
	}
}

func TestCallerFromContextNil(t *testing.T) {
	if _, ok := CallerFromContext(nil); ok {
		t.Fatal("expected no caller for nil context")
	}
}

func TestWithCallerNilContext(t *testing.T) {
	caller := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	ctx := WithCaller(nil, caller)
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	if got, ok := CallerFromContext(ctx); !ok || got != caller {
		t.Fatalf("CallerFromContext = (%s, %v), want (%s, true)", got.Hex(), ok, caller.Hex())
	}
}

func TestWithCallerZeroAddressIsPresent(t *testing.T) {
	ctx := WithCaller(context.Background(), common.Address{})
	if _, ok := CallerFromContext(ctx); !ok {
		t.Fatal("expected zero address caller to be reported as present")
	}
}
