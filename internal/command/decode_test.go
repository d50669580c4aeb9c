package command

import "testing"

func TestDecodeCallsign(t *testing.T) {
	got, ok := decodeCallsign([]string{"whiskey", "one", "alpha", "whiskey"})
	if !ok || got != "W1AW" {
		t.Fatalf("decodeCallsign = %q,%v want W1AW", got, ok)
	}
}

func TestDecodeCallsignSkipsFiller(t *testing.T) {
	got, ok := decodeCallsign([]string{"uh", "kilo", "the", "two", "x", "bravo"})
	if !ok || got != "K2XB" {
		t.Fatalf("decodeCallsign = %q,%v want K2XB", got, ok)
	}
}

func TestDecodeCallsignAllNoiseFails(t *testing.T) {
	if got, ok := decodeCallsign([]string{"um", "well", "anyway"}); ok {
		t.Fatalf("expected failure, got %q", got)
	}
	if _, ok := decodeCallsign(nil); ok {
		t.Fatal("empty window must not decode")
	}
}

func TestDecodeReferencePOTAStyle(t *testing.T) {
	got, ok := decodeReference([]string{"kilo", "dash", "one", "two", "three", "four"})
	if !ok || got != "K-1234" {
		t.Fatalf("decodeReference = %q,%v want K-1234", got, ok)
	}
}

func TestDecodeReferenceSOTAStyle(t *testing.T) {
	window := []string{"whiskey", "four", "charlie", "slash", "charlie", "mike", "dash", "zero", "zero", "one"}
	got, ok := decodeReference(window)
	if !ok || got != "W4C/CM-001" {
		t.Fatalf("decodeReference = %q,%v want W4C/CM-001", got, ok)
	}
}

func TestDecodeReferenceSymbolsOnlyFails(t *testing.T) {
	if got, ok := decodeReference([]string{"dash", "slash"}); ok {
		t.Fatalf("expected failure, got %q", got)
	}
}

func TestDecodeFrequencyMHzSpoken(t *testing.T) {
	got, ok := decodeFrequency([]string{"one", "four", "point", "two", "one", "nine"})
	if !ok || got != 14219 {
		t.Fatalf("decodeFrequency = %v,%v want 14219", got, ok)
	}
}

func TestDecodeFrequencyKHzSpoken(t *testing.T) {
	got, ok := decodeFrequency([]string{"one", "four", "two", "one", "nine"})
	if !ok || got != 14219 {
		t.Fatalf("decodeFrequency = %v,%v want 14219", got, ok)
	}
}

func TestDecodeFrequencyNumberWords(t *testing.T) {
	// "fourteen point twenty five" -> 14.25 MHz
	got, ok := decodeFrequency([]string{"fourteen", "point", "twenty", "five"})
	if !ok || got != 14250 {
		t.Fatalf("decodeFrequency = %v,%v want 14250", got, ok)
	}
	// "seven point two oh five" -> 7205 kHz
	got, ok = decodeFrequency([]string{"seven", "point", "two", "oh", "five"})
	if !ok || got != 7205 {
		t.Fatalf("decodeFrequency = %v,%v want 7205", got, ok)
	}
}

func TestDecodeFrequencySmallValueIsMHz(t *testing.T) {
	got, ok := decodeFrequency([]string{"one", "four"})
	if !ok || got != 14000 {
		t.Fatalf("decodeFrequency = %v,%v want 14000", got, ok)
	}
}

func TestDecodeFrequencyVHFDirect(t *testing.T) {
	got, ok := decodeFrequency([]string{"one", "four", "six", "five", "two", "zero"})
	if !ok || got != 146520 {
		t.Fatalf("decodeFrequency = %v,%v want 146520", got, ok)
	}
}

func TestDecodeFrequencyBareDigits(t *testing.T) {
	got, ok := decodeFrequency([]string{"14250"})
	if !ok || got != 14250 {
		t.Fatalf("decodeFrequency = %v,%v want 14250", got, ok)
	}
}

func TestDecodeFrequencyFailures(t *testing.T) {
	if got, ok := decodeFrequency(nil); ok {
		t.Fatalf("empty window decoded to %v", got)
	}
	if got, ok := decodeFrequency([]string{"point"}); ok {
		t.Fatalf("marker-only window decoded to %v", got)
	}
	if got, ok := decodeFrequency([]string{"banana", "pancake"}); ok {
		t.Fatalf("noise window decoded to %v", got)
	}
	// two decimal markers make the string unparsable; must fail, not zero
	if got, ok := decodeFrequency([]string{"one", "point", "four", "point", "two"}); ok {
		t.Fatalf("double-point window decoded to %v", got)
	}
	if got, ok := decodeFrequency([]string{"zero"}); ok {
		t.Fatalf("zero must not be a valid frequency, got %v", got)
	}
}
