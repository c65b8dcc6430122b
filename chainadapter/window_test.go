package chainadapter

import "testing"

func TestClampWindowNeverExceedsMax(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, confirmed, wantTo uint64
	}{
		{from: 1, confirmed: 50, wantTo: 50},
		{from: 1, confirmed: 1000, wantTo: 100},
		{from: 101, confirmed: 1000, wantTo: 200},
		{from: 500, confirmed: 499, wantTo: 499}, // nothing confirmed yet
	}

	for _, c := range cases {
		got := ClampWindow(c.from, c.confirmed)
		if got != c.wantTo {
			t.Fatalf("ClampWindow(%d, %d) = %d, want %d",
				c.from, c.confirmed, got, c.wantTo)
		}
		if got > c.from && got-c.from+1 > MaxBlocksPerQuery {
			t.Fatalf("window exceeds MaxBlocksPerQuery: [%d,%d]", c.from, got)
		}
	}
}

func TestRetryPolicyExponentialBackoff(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	if p.Delay(0) != p.BaseDelay {
		t.Fatalf("first delay should equal base delay")
	}
	if p.Delay(1) != p.BaseDelay*2 {
		t.Fatalf("second delay should double the base delay")
	}
	if p.Delay(2) != p.BaseDelay*4 {
		t.Fatalf("third delay should quadruple the base delay")
	}
}
