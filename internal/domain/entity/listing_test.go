package entity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestReserveListing_Role(t *testing.T) {
	l := ReserveListing{EnabledToBorrow: FlagEnabled}
	if l.Role() != RoleBorrow {
		t.Errorf("expected borrow, got %s", l.Role())
	}
	l.EnabledToBorrow = FlagDisabled
	if l.Role() != RoleCollateral {
		t.Errorf("expected collateral, got %s", l.Role())
	}
}

func TestReserveListing_AddressPanicsOnBadLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	l := ReserveListing{Asset: []byte{1, 2, 3}}
	l.AssetAddress()
}

func TestReserveListing_AssetHex(t *testing.T) {
	l := ReserveListing{Asset: []byte{0xab, 0x01}}
	if got := l.AssetHex(); got != "0xab01" {
		t.Errorf("got %s", got)
	}
}

func TestCanonicalSubmission_SortedAssets(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0xff")
	c := common.HexToAddress("0x1000")
	sub := CanonicalSubmission{Listings: map[common.Address]ResolvedListing{
		b: {Asset: b}, c: {Asset: c}, a: {Asset: a},
	}}

	got := sub.SortedAssets()
	want := []common.Address{a, b, c}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, got[i].Hex(), want[i].Hex())
		}
	}
	if listings := sub.SortedListings(); listings[2].Asset != c {
		t.Errorf("expected last listing to be %s", c.Hex())
	}
}
