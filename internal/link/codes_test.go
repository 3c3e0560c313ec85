package link

import "testing"

func TestNewPairingCodeFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := NewPairingCode()
		if len(code) != 6 {
			t.Fatalf("code %q has length %d, want 6", code, len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q contains non-digit %q", code, c)
			}
		}
		if code[0] == '0' {
			t.Fatalf("code %q has leading zero", code)
		}
		seen[code] = true
	}
	// Not a strict uniqueness guarantee, but 200 draws from 900k values
	// collapsing to a handful would indicate a broken generator.
	if len(seen) < 100 {
		t.Errorf("only %d distinct codes in 200 draws", len(seen))
	}
}
