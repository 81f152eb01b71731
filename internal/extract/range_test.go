package extract

import (
	"math"
	"reflect"
	"testing"
)

func TestBatches(t *testing.T) {
	tests := []struct {
		name string
		rng  BlockRange
		size uint64
		want []BlockRange
	}{
		{name: "even split", rng: BlockRange{From: 100, To: 105}, size: 2, want: []BlockRange{{100, 101}, {102, 103}, {104, 105}}},
		{name: "short tail", rng: BlockRange{From: 100, To: 104}, size: 2, want: []BlockRange{{100, 101}, {102, 103}, {104, 104}}},
		{name: "single block", rng: BlockRange{From: 5, To: 5}, size: 10, want: []BlockRange{{5, 5}}},
		{name: "top of range", rng: BlockRange{From: math.MaxUint64 - 2, To: math.MaxUint64}, size: 2, want: []BlockRange{{math.MaxUint64 - 2, math.MaxUint64 - 1}, {math.MaxUint64, math.MaxUint64}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rng.Batches(tt.size)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("batches mismatch: %+v != %+v", got, tt.want)
			}
		})
	}
}

func TestBatchesInvalid(t *testing.T) {
	if _, err := (BlockRange{From: 10, To: 9}).Batches(1); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := (BlockRange{From: 1, To: 10}).Batches(0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
	if n := (BlockRange{From: 10, To: 9}).Len(); n != 0 {
		t.Fatalf("inverted range length: %d", n)
	}
}

func TestSelectRange(t *testing.T) {
	tests := []struct {
		name         string
		watermark    uint64
		hasWatermark bool
		head         uint64
		lookback     uint64
		want         BlockRange
		wantOK       bool
	}{
		{name: "watermark rescans one block", watermark: 1000, hasWatermark: true, head: 1200, lookback: 500, want: BlockRange{From: 999, To: 1199}, wantOK: true},
		{name: "no watermark uses lookback", head: 1200, lookback: 500, want: BlockRange{From: 700, To: 1199}, wantOK: true},
		{name: "short chain starts at genesis", head: 100, lookback: 500, want: BlockRange{From: 0, To: 99}, wantOK: true},
		{name: "watermark at head", watermark: 1201, hasWatermark: true, head: 1200, lookback: 500, want: BlockRange{From: 1200, To: 1199}, wantOK: false},
		{name: "empty chain", head: 0, lookback: 500, wantOK: false},
		{name: "zero watermark", watermark: 0, hasWatermark: true, head: 10, lookback: 500, want: BlockRange{From: 0, To: 9}, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectRange(tt.watermark, tt.hasWatermark, tt.head, tt.lookback)
			if ok != tt.wantOK {
				t.Fatalf("ok mismatch: %v", ok)
			}
			if ok && got != tt.want {
				t.Fatalf("range mismatch: %+v != %+v", got, tt.want)
			}
		})
	}
}
