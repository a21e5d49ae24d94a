package proxy

import (
	"testing"
)

func TestParseTimestamp_utc(t *testing.T) {
	ts, err := ParseTimestamp("20250825T080124Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Epoch != 1756108884 {
		t.Errorf("epoch = %d, want 1756108884", ts.Epoch)
	}
	if ts.Format != TimeFormatUTC {
		t.Errorf("format = %d, want TimeFormatUTC", ts.Format)
	}
	if ts.Offset != 0 {
		t.Errorf("offset = %d, want 0", ts.Offset)
	}
}

func TestParseTimestamp_lowercase_z(t *testing.T) {
	ts, err := ParseTimestamp("20250825T080124z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Epoch != 1756108884 || ts.Format != TimeFormatUTC {
		t.Errorf("got epoch %d format %d", ts.Epoch, ts.Format)
	}
}

func TestParseTimestamp_bare(t *testing.T) {
	ts, err := ParseTimestamp("19700101T000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Epoch != 0 {
		t.Errorf("epoch = %d, want 0", ts.Epoch)
	}
	if ts.Format != TimeFormatNone {
		t.Errorf("format = %d, want TimeFormatNone", ts.Format)
	}
}

func TestParseTimestamp_before_epoch(t *testing.T) {
	ts, err := ParseTimestamp("19691231T235959Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Epoch != -1 {
		t.Errorf("epoch = %d, want -1", ts.Epoch)
	}
}

func TestParseTimestamp_positive_offset(t *testing.T) {
	// 16:01:24 at +08:00 is 08:01:24 UTC.
	ts, err := ParseTimestamp("20250825T160124+08:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Epoch != 1756108884 {
		t.Errorf("epoch = %d, want 1756108884", ts.Epoch)
	}
	if ts.Format != TimeFormatOffsetColon {
		t.Errorf("format = %d, want TimeFormatOffsetColon", ts.Format)
	}
	if ts.Offset != 8*3600 {
		t.Errorf("offset = %d, want %d", ts.Offset, 8*3600)
	}
}

func TestParseTimestamp_negative_offset_compact(t *testing.T) {
	ts, err := ParseTimestamp("20250825T030124-0500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Epoch != 1756108884 {
		t.Errorf("epoch = %d, want 1756108884", ts.Epoch)
	}
	if ts.Format != TimeFormatOffset {
		t.Errorf("format = %d, want TimeFormatOffset", ts.Format)
	}
	if ts.Offset != -5*3600 {
		t.Errorf("offset = %d, want %d", ts.Offset, -5*3600)
	}
}

func TestParseTimestamp_leap_years(t *testing.T) {
	if _, err := ParseTimestamp("20240229T120000Z"); err != nil {
		t.Errorf("2024-02-29 should parse: %v", err)
	}
	if _, err := ParseTimestamp("20000229T120000Z"); err != nil {
		t.Errorf("2000-02-29 should parse: %v", err)
	}
	if _, err := ParseTimestamp("20230229T120000Z"); err == nil {
		t.Error("2023-02-29 should be rejected")
	}
	if _, err := ParseTimestamp("19000229T120000Z"); err == nil {
		t.Error("1900-02-29 should be rejected (centuries are not leap)")
	}
	if _, err := ParseTimestamp("21000229T120000Z"); err == nil {
		t.Error("2100-02-29 should be rejected")
	}
}

func TestParseTimestamp_leap_day_epoch(t *testing.T) {
	// 2024 is leap, so days after February shift by one.
	leap, err := ParseTimestamp("20240301T000000Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	feb, err := ParseTimestamp("20240228T000000Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if leap.Epoch-feb.Epoch != 2*86400 {
		t.Errorf("Feb 28 to Mar 1 in a leap year = %d secs, want two days", leap.Epoch-feb.Epoch)
	}
}

func TestParseTimestamp_second_60_accepted(t *testing.T) {
	ts, err := ParseTimestamp("20250825T080160Z")
	if err != nil {
		t.Fatalf("seconds value 60 should be accepted: %v", err)
	}
	// Carries into the next minute arithmetically.
	if ts.Epoch != 1756108920 {
		t.Errorf("epoch = %d, want 1756108920", ts.Epoch)
	}
}

func TestParseTimestamp_rejects_malformed(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"too short", "20250825T0801"},
		{"missing separator", "20250825X080124Z"},
		{"letters in date", "2025A825T080124Z"},
		{"month zero", "20250025T080124Z"},
		{"month thirteen", "20251325T080124Z"},
		{"day zero", "20250800T080124Z"},
		{"day out of range", "20250832T080124Z"},
		{"hour out of range", "20250825T240124Z"},
		{"minute out of range", "20250825T086024Z"},
		{"second out of range", "20250825T080161Z"},
		{"offset too short", "20250825T080124+08"},
		{"offset too long", "20250825T080124+080000"},
		{"offset minutes out of range", "20250825T080124+0860"},
		{"offset double colon", "20250825T080124+0:8:00"},
		{"offset garbage", "20250825T080124+08a0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTimestamp(tc.value); err == nil {
				t.Errorf("ParseTimestamp(%q) should fail", tc.value)
			}
		})
	}
}

func TestFormatTimestamp_utc(t *testing.T) {
	out := FormatTimestamp(1756108884, TimeFormatUTC, 0)
	if out != "20250825T080124Z" {
		t.Errorf("got %q, want 20250825T080124Z", out)
	}
}

func TestFormatTimestamp_bare(t *testing.T) {
	out := FormatTimestamp(1756108884, TimeFormatNone, 0)
	if out != "20250825T080124" {
		t.Errorf("got %q, want 20250825T080124", out)
	}
}

func TestFormatTimestamp_relocalizes_offset_forms(t *testing.T) {
	// The offset forms add the offset back before rendering, so the instant
	// round-trips to the same wall-clock text it was parsed from.
	out := FormatTimestamp(1756108884, TimeFormatOffsetColon, 8*3600)
	if out != "20250825T160124+08:00" {
		t.Errorf("got %q, want 20250825T160124+08:00", out)
	}
	out = FormatTimestamp(1756108884, TimeFormatOffset, -5*3600)
	if out != "20250825T030124-0500" {
		t.Errorf("got %q, want 20250825T030124-0500", out)
	}
}

func TestFormatTimestamp_negative_epoch(t *testing.T) {
	out := FormatTimestamp(-1, TimeFormatUTC, 0)
	if out != "19691231T235959Z" {
		t.Errorf("got %q, want 19691231T235959Z", out)
	}
}

func TestTimestamp_roundtrip(t *testing.T) {
	values := []string{
		"20250825T080124Z",
		"19700101T000000",
		"20240229T235959Z",
		"20250825T160124+08:00",
		"20250825T030124-0500",
		"20251231T235959+0930",
	}
	for _, v := range values {
		ts, err := ParseTimestamp(v)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", v, err)
			continue
		}
		if out := FormatTimestamp(ts.Epoch, ts.Format, ts.Offset); out != v {
			t.Errorf("round trip %q -> %q", v, out)
		}
	}
}
