package relay

import (
	"testing"
	"time"
)

func TestNewTokenShape(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok := NewToken()
		if len(tok) != 32 {
			t.Fatalf("token length=%d want=32: %q", len(tok), tok)
		}
		for _, r := range tok {
			if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
				t.Fatalf("non-hex char %q in token %q", r, tok)
			}
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token minted: %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestNewConnID(t *testing.T) {
	t.Parallel()

	id, err := NewConnID(time.Now().UTC())
	if err != nil {
		t.Fatalf("NewConnID: %v", err)
	}
	if len(id) != 26 {
		t.Fatalf("ulid length=%d want=26: %q", len(id), id)
	}

	// Zero time falls back to now instead of failing.
	id2, err := NewConnID(time.Time{})
	if err != nil || len(id2) != 26 {
		t.Fatalf("NewConnID(zero): id=%q err=%v", id2, err)
	}
}
