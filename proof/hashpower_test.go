package proof

import "testing"

func TestHashpower(t *testing.T) {
	cases := []struct {
		difficulty uint32
		want       uint64
	}{
		{7, 0},
		{8, 5},
		{9, 10},
		{12, 80},
		{20, 5 * 4096},
		{22, MaxHashpower}, // 5*2^14 == cap
		{30, MaxHashpower},
		{255, MaxHashpower},
	}
	for _, c := range cases {
		if got := Hashpower(c.difficulty); got != c.want {
			t.Errorf("Hashpower(%d) = %d, want %d", c.difficulty, got, c.want)
		}
	}
}

func TestHashpowerCap(t *testing.T) {
	for d := uint32(8); d < 64; d++ {
		if hp := Hashpower(d); hp > MaxHashpower {
			t.Fatalf("Hashpower(%d) = %d exceeds cap %d", d, hp, MaxHashpower)
		}
	}
}

// S1: single client, difficulty 12, reward 10,000.
func TestEarnedScenarioS1(t *testing.T) {
	hp := Hashpower(12)
	if hp != 80 {
		t.Fatalf("hp = %d, want 80", hp)
	}
	total := hp
	if ppm := SharePpm(hp, total); ppm != 1_000_000 {
		t.Fatalf("ppm = %d, want 1_000_000", ppm)
	}
	if got := Earned(hp, total, 10_000); got != 10_000 {
		t.Fatalf("earned = %d, want 10000", got)
	}
}

// S2: two clients, difficulties 10 and 12, reward 10,000.
func TestEarnedScenarioS2(t *testing.T) {
	hpA, hpB := Hashpower(10), Hashpower(12)
	if hpA != 20 || hpB != 80 {
		t.Fatalf("hpA=%d hpB=%d, want 20,80", hpA, hpB)
	}
	total := hpA + hpB
	if got := SharePpm(hpA, total); got != 200_000 {
		t.Fatalf("ppmA = %d, want 200000", got)
	}
	if got := SharePpm(hpB, total); got != 800_000 {
		t.Fatalf("ppmB = %d, want 800000", got)
	}
	if got := Earned(hpA, total, 10_000); got != 2_000 {
		t.Fatalf("earnedA = %d, want 2000", got)
	}
	if got := Earned(hpB, total, 10_000); got != 8_000 {
		t.Fatalf("earnedB = %d, want 8000", got)
	}
}

// S3: three clients, difficulties 9, 9, 30, reward 1,000,000; dust = 1.
func TestEarnedScenarioS3(t *testing.T) {
	hpA, hpB, hpC := Hashpower(9), Hashpower(9), Hashpower(30)
	if hpA != 10 || hpB != 10 || hpC != MaxHashpower {
		t.Fatalf("hp = %d,%d,%d", hpA, hpB, hpC)
	}
	total := hpA + hpB + hpC
	if total != 81_940 {
		t.Fatalf("total = %d, want 81940", total)
	}
	const reward = 1_000_000
	eA, eB, eC := Earned(hpA, total, reward), Earned(hpB, total, reward), Earned(hpC, total, reward)
	if eA != 122 || eB != 122 || eC != 999_755 {
		t.Fatalf("earned = %d,%d,%d, want 122,122,999755", eA, eB, eC)
	}
	dust := reward - (eA + eB + eC)
	if dust != 1 {
		t.Fatalf("dust = %d, want 1", dust)
	}
}

func TestCutoffClampsToZero(t *testing.T) {
	now := mustTime(2026, 1, 1, 0, 2, 0)
	lastHashAt := mustTime(2026, 1, 1, 0, 0, 0).Unix()
	if got := Cutoff(lastHashAt, now); got != 0 {
		t.Fatalf("Cutoff = %v, want 0", got)
	}
}
