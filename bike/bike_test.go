package bike

import "testing"

func TestMinUnlockBalance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		hourlyRate int64
		want       int64
	}{
		{"even rate", 200, 100},
		{"odd rate rounds up", 201, 101},
		{"one", 1, 1},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MinUnlockBalance(tt.hourlyRate); got != tt.want {
				t.Errorf("MinUnlockBalance(%d) = %d, want %d", tt.hourlyRate, got, tt.want)
			}
		})
	}
}

func TestStatusRoundTrip(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{Available, InUse, Maintenance, Unavailable} {
		var scanned Status
		if err := scanned.Scan(status.String()); err != nil {
			t.Fatalf("Scan(%q): %v", status.String(), err)
		}
		if scanned != status {
			t.Errorf("Scan(%q) = %v, want %v", status.String(), scanned, status)
		}
	}
}
