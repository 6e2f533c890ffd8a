package common

import (
	"testing"
)

func TestParseBlockNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint64
		wantErr bool
	}{
		{name: "zero", input: "0", want: 0},
		{name: "watermark", input: "18000121", want: 18_000_121},
		{name: "padded", input: " 42\n", want: 42},
		{name: "hex", input: "0x10", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "overflow", input: "18446744073709551616", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlockNumber(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBlockNumber() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBlockNumber() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlockNumberRoundtrip(t *testing.T) {
	for _, block := range []uint64{0, 1, 121, 18_000_000} {
		got, err := ParseBlockNumber(FormatBlockNumber(block))
		if err != nil {
			t.Fatalf("ParseBlockNumber() error = %v", err)
		}
		if got != block {
			t.Errorf("ParseBlockNumber() = %v, want %v", got, block)
		}
	}
}

func TestToLowerWithTrim(t *testing.T) {
	if got := ToLowerWithTrim("  XRP \t"); got != "xrp" {
		t.Errorf("ToLowerWithTrim() = %q, want %q", got, "xrp")
	}
}
