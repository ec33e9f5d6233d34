// ABOUTME: Tests for sample format parsing
// ABOUTME: Tests encoding name matching and per-format byte widths
package audio

import "testing"

func TestParseSampleFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected SampleFormat
	}{
		{"L16", "L16", FormatS16BE},
		{"lowercase l16", "l16", FormatS16BE},
		{"bare 16", "16", FormatS16BE},
		{"L24", "L24", FormatS24BE},
		{"L32", "L32", FormatS32BE},
		{"float32", "float32", FormatFloat32BE},
		{"F32", "F32", FormatFloat32BE},
		{"FLOAT", "FLOAT", FormatFloat32BE},
		{"suffixed name", "L16-48k", FormatS16BE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseSampleFormat(tt.input)
			if err != nil {
				t.Fatalf("ParseSampleFormat(%q) failed: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestParseSampleFormat_Unsupported(t *testing.T) {
	for _, input := range []string{"", "opus", "L8", "PCMU"} {
		if _, err := ParseSampleFormat(input); err == nil {
			t.Errorf("expected error for %q, got nil", input)
		}
	}
}

func TestBytesPerSample(t *testing.T) {
	tests := []struct {
		format   SampleFormat
		expected int
	}{
		{FormatS16BE, 2},
		{FormatS24BE, 3},
		{FormatS32BE, 4},
		{FormatFloat32BE, 4},
		{FormatUnknown, 0},
	}

	for _, tt := range tests {
		if got := tt.format.BytesPerSample(); got != tt.expected {
			t.Errorf("%v.BytesPerSample() = %d, want %d", tt.format, got, tt.expected)
		}
	}
}

func TestSampleFormatString(t *testing.T) {
	tests := []struct {
		format   SampleFormat
		expected string
	}{
		{FormatS16BE, "L16"},
		{FormatS24BE, "L24"},
		{FormatS32BE, "L32"},
		{FormatFloat32BE, "F32"},
		{FormatUnknown, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.format.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}
