package service

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBuildQRCodeDeterministic(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	first := BuildQRCode("QR", 12, 3, at, "abc123")
	second := BuildQRCode("QR", 12, 3, at, "abc123")
	if first != second {
		t.Fatalf("same inputs produced different codes: %q vs %q", first, second)
	}
	want := "QR-12-3-1700000000000-abc123"
	if first != want {
		t.Fatalf("unexpected code, want %q, got %q", want, first)
	}
}

func TestBuildQRCodeDefaultPrefix(t *testing.T) {
	code := BuildQRCode("  ", 1, 1, time.UnixMilli(1), "x")
	if !strings.HasPrefix(code, "QR-") {
		t.Fatalf("expected default prefix, got %q", code)
	}
}

func TestGenerateSerialNumber(t *testing.T) {
	cases := []struct {
		index     int
		startFrom int
		want      string
	}{
		{1, 0, "BATCH001-00000001"},
		{5, 0, "BATCH001-00000005"},
		{1, 100, "BATCH001-00000101"},
		{250, 0, "BATCH001-00000250"},
	}
	for _, tc := range cases {
		got := GenerateSerialNumber("BATCH001", tc.index, tc.startFrom)
		if got != tc.want {
			t.Fatalf("serial(index=%d, start=%d): want %q, got %q", tc.index, tc.startFrom, tc.want, got)
		}
	}
}

func TestParseSerialSequence(t *testing.T) {
	if got := ParseSerialSequence("BATCH001-00000123"); got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}
	if got := ParseSerialSequence("BATCH-X-00000007"); got != 7 {
		t.Fatalf("expected suffix after last dash, got %d", got)
	}
	if got := ParseSerialSequence(""); got != 0 {
		t.Fatalf("expected 0 for empty serial, got %d", got)
	}
	if got := ParseSerialSequence("BATCH001-abc"); got != 0 {
		t.Fatalf("expected 0 for bad suffix, got %d", got)
	}
}

func TestBuildBatchItemsRange(t *testing.T) {
	now := time.Now()
	items := BuildBatchItems(9, "RUN-2026", 100, 149, 0, "QR", now)
	if len(items) != 50 {
		t.Fatalf("expected 50 items, got %d", len(items))
	}
	if items[0].SerialNumber != "RUN-2026-00000101" {
		t.Fatalf("unexpected first serial: %q", items[0].SerialNumber)
	}
	if items[49].SerialNumber != "RUN-2026-00000150" {
		t.Fatalf("unexpected last serial: %q", items[49].SerialNumber)
	}
	if items[0].ItemOrder != 101 || items[49].ItemOrder != 150 {
		t.Fatalf("unexpected item orders: %d..%d", items[0].ItemOrder, items[49].ItemOrder)
	}

	seen := map[string]bool{}
	for _, item := range items {
		if seen[item.SerialNumber] {
			t.Fatalf("duplicate serial %q", item.SerialNumber)
		}
		seen[item.SerialNumber] = true
		if item.BatchID != 9 {
			t.Fatalf("unexpected batch id %d", item.BatchID)
		}
	}
}

func TestBuildBatchItemsSmallBatchScenario(t *testing.T) {
	// 5 件的小批量：序号应为 00000001..00000005
	items := BuildBatchItems(1, "SMALL-01", 0, 4, 0, "QR", time.Now())
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	for i, item := range items {
		want := fmt.Sprintf("SMALL-01-%08d", i+1)
		if item.SerialNumber != want {
			t.Fatalf("item %d: want serial %q, got %q", i, want, item.SerialNumber)
		}
	}
}

func TestBuildBatchItemsEmptyRange(t *testing.T) {
	if items := BuildBatchItems(1, "X", 5, 4, 0, "QR", time.Now()); items != nil {
		t.Fatalf("expected nil for inverted range, got %d items", len(items))
	}
}
