package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain ascii", `T1,USD`, `T1,USD`},
		{"curly double", "“T1”", `"T1"`},
		{"curly single", "‘it’s’", `'it's'`},
		{"low and reversed", "„a‟ ‚b‛", `"a" 'b'`},
		{"primes kept", "5′ 10″", "5′ 10″"},
		{"guillemets kept", "<T id=\"«T1»\"/>", "<T id=\"«T1»\"/>"},
		{"mixed", "<Status>“Approved”</Status>", `<Status>"Approved"</Status>`},
		{"empty", "", ""},
		{"non quote unicode kept", "Zürich – €", "Zürich – €"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestText_Idempotent(t *testing.T) {
	inputs := []string{
		"“T1”",
		"‘x’ and “y”",
		`already "straight" 'quotes'`,
		"„‟‚‛″′«»",
		"«“x”»",
		"",
	}

	for _, in := range inputs {
		once := Text(in)
		twice := Text(once)
		if once != twice {
			t.Errorf("Text not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"straight quoted", `"T1"`, "T1"},
		{"curly quoted", "“1.000,00”", "1.000,00"},
		{"padded", `  "USD"  `, "USD"},
		{"interleaved quotes and spaces", `" "Approved" "`, "Approved"},
		{"inner quotes kept", `"say "hi""`, `say "hi`},
		{"single quotes kept", `'A'`, `'A'`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Field(tt.input)
			if got != tt.expected {
				t.Errorf("Field(%q) = %q, want %q", tt.input, got, tt.expected)
			}
			if again := Field(got); again != got {
				t.Errorf("Field not idempotent for %q: %q then %q", tt.input, got, again)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"utf8", []byte("“T1”"), "“T1”"},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, "T1"...), "T1"},
		{"utf16 le bom", []byte{0xFF, 0xFE, 'T', 0x00, '1', 0x00}, "T1"},
		{"utf16 be bom", []byte{0xFE, 0xFF, 0x00, 'T', 0x00, '1'}, "T1"},
		{"windows-1252 curly quotes", []byte{0x93, 'T', '1', 0x94}, "“T1”"},
		{"windows-1252 euro", []byte{0x80, '5'}, "€5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decode(tt.input); got != tt.expected {
				t.Errorf("Decode(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDecode_LegacyByteAfterLongUTF8Prefix(t *testing.T) {
	// The only non-UTF-8 byte sits well past the first few kilobytes.
	prefix := strings.Repeat("T0,1.00,USD,01/01/2024 10:00:00,Approved\n", 150)
	in := append([]byte(prefix), 0x93, 'L', 'A', 'S', 'T', 0x94, '\n')

	got := Decode(in)
	if !strings.HasSuffix(got, "“LAST”\n") {
		t.Errorf("Expected cp1252 quotes decoded at the end, got tail %q", got[len(got)-12:])
	}
	if strings.ContainsRune(got, utf8.RuneError) {
		t.Error("Expected no replacement characters in decoded text")
	}
	if !strings.HasPrefix(got, prefix) {
		t.Error("Expected ASCII prefix unchanged")
	}
}
