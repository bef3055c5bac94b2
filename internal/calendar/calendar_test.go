package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, newYork)
}

func TestIsTradingDaySkipsWeekends(t *testing.T) {
	assert.False(t, IsTradingDay(date(2024, time.July, 6))) // Saturday
	assert.False(t, IsTradingDay(date(2024, time.July, 7))) // Sunday
	assert.True(t, IsTradingDay(date(2024, time.July, 8)))  // Monday
}

func TestIsTradingDaySkipsIndependenceDay(t *testing.T) {
	assert.False(t, IsTradingDay(date(2024, time.July, 4)))
	assert.True(t, IsTradingDay(date(2024, time.July, 3)))
	assert.True(t, IsTradingDay(date(2024, time.July, 5)))
}

func TestIsTradingDaySkipsObservedHolidays(t *testing.T) {
	assert.False(t, IsTradingDay(date(2024, time.January, 15)))   // MLK day: 3rd Monday
	assert.False(t, IsTradingDay(date(2024, time.February, 19)))  // Presidents' day: 3rd Monday
	assert.False(t, IsTradingDay(date(2024, time.May, 27)))       // Memorial day: last Monday
	assert.False(t, IsTradingDay(date(2024, time.September, 2)))  // Labor day: 1st Monday
	assert.False(t, IsTradingDay(date(2024, time.November, 28)))  // Thanksgiving: 4th Thursday
	assert.False(t, IsTradingDay(date(2024, time.December, 25)))
}

func TestNextTradingDaySkipsWeekendAndHoliday(t *testing.T) {
	sat := date(2024, time.January, 13)
	got := NextTradingDay(sat, false)
	assert.Equal(t, date(2024, time.January, 16), got) // Monday the 15th is MLK day
}

func TestIsMarketHoursRespectsOpenAndCloseBoundary(t *testing.T) {
	open := time.Date(2024, time.July, 8, 9, 30, 0, 0, newYork)
	close := time.Date(2024, time.July, 8, 16, 0, 0, 0, newYork)
	beforeOpen := time.Date(2024, time.July, 8, 9, 29, 0, 0, newYork)

	assert.True(t, IsMarketHours(open))
	assert.False(t, IsMarketHours(close))
	assert.False(t, IsMarketHours(beforeOpen))
}

func TestIsMarketHoursFalseOnWeekendRegardlessOfClock(t *testing.T) {
	sat := time.Date(2024, time.July, 6, 12, 0, 0, 0, newYork)
	assert.False(t, IsMarketHours(sat))
}
