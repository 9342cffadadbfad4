package buyexecutor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func seoulTime(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skip("Asia/Seoul zoneinfo unavailable in this environment")
	}
	return time.Date(year, month, day, hour, min, 0, 0, loc)
}

func TestIsTradingSession_WeekendIsClosed(t *testing.T) {
	// 2026-08-08 is a Saturday.
	sat := seoulTime(t, 2026, time.August, 8, 10, 0)
	if isTradingSession(sat) {
		t.Error("expected weekend to be outside the trading session")
	}
}

func TestIsTradingSession_WithinRegularHours(t *testing.T) {
	// 2026-08-10 is a Monday.
	mon := seoulTime(t, 2026, time.August, 10, 10, 30)
	if !isTradingSession(mon) {
		t.Error("expected 10:30 on a weekday to be within the trading session")
	}
}

func TestIsTradingSession_BeforeOpen(t *testing.T) {
	mon := seoulTime(t, 2026, time.August, 10, 8, 59)
	if isTradingSession(mon) {
		t.Error("expected 08:59 to be before the 09:00 open")
	}
}

func TestIsTradingSession_AfterClose(t *testing.T) {
	mon := seoulTime(t, 2026, time.August, 10, 15, 31)
	if isTradingSession(mon) {
		t.Error("expected 15:31 to be after the 15:30 close")
	}
}

func TestIsTradingSession_AtExactBoundaries(t *testing.T) {
	open := seoulTime(t, 2026, time.August, 10, 9, 0)
	if !isTradingSession(open) {
		t.Error("expected the 09:00 open boundary to be inclusive")
	}
	close_ := seoulTime(t, 2026, time.August, 10, 15, 30)
	if !isTradingSession(close_) {
		t.Error("expected the 15:30 close boundary to be inclusive")
	}
}

func TestAlignTick_RoundsDownPerKRXBand(t *testing.T) {
	cases := []struct {
		price decimal.Decimal
		want  int64
	}{
		{decimal.NewFromInt(1234), 1234},   // <2000: tick 1
		{decimal.NewFromInt(3456), 3455},   // <5000: tick 5
		{decimal.NewFromInt(12345), 12340}, // <20000: tick 10
		{decimal.NewFromInt(23456), 23450}, // <50000: tick 50
		{decimal.NewFromInt(123456), 123400}, // <200000: tick 100
		{decimal.NewFromInt(345678), 345500}, // <500000: tick 500
		{decimal.NewFromInt(567890), 567000}, // >=500000: tick 1000
	}
	for _, c := range cases {
		got := alignTick(c.price)
		if got.IntPart() != c.want {
			t.Errorf("alignTick(%s) = %d, want %d", c.price, got.IntPart(), c.want)
		}
	}
}
