package convert

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSASDate(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"null", nil, nil},
		{"epoch", 0.0, date(1960, time.January, 1)},
		{"april 2016", 20545.0, date(2016, time.April, 1)},
		{"end of 2018", 21549.0, date(2018, time.December, 31)},
		{"january 2019", 21561.0, date(2019, time.January, 12)},
		{"int offset", int64(1), date(1960, time.January, 2)},
		{"fraction rounds down", 1.75, date(1960, time.January, 2)},
		{"before epoch", -1.0, date(1959, time.December, 31)},
		{"negative fraction rounds down", -0.5, date(1959, time.December, 31)},
		{"negative fraction below a day", -1.25, date(1959, time.December, 30)},
		{"first representable day", float64(-715509), date(1, time.January, 1)},
		{"last representable day", int64(2936549), date(9999, time.December, 31)},
		{"before year one", float64(-715510), nil},
		{"after year 9999", int64(2936550), nil},
		{"huge offset", 1e300, nil},
		{"infinity", math.Inf(-1), nil},
		{"nan", math.NaN(), nil},
		{"text", "20545", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SASDate(tt.in))
		})
	}
}

func TestSASDate_MatchesCalendar(t *testing.T) {
	for _, days := range []int{0, 1, 365, 366, 20000, 21549} {
		want := SASEpoch.AddDate(0, 0, days)
		assert.Equal(t, want, SASDate(float64(days)), "offset %d", days)
	}
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, date(1980, time.January, 1), ParseDate("1980-01-01"))
	assert.Equal(t, date(1743, time.November, 1), ParseDate("1743-11-01"))
	assert.Equal(t, date(2013, time.September, 1), ParseDate("2013-09-01 00:00:00"))
	assert.Equal(t, date(2013, time.September, 1), ParseDate(" 2013-9-1 "))
	assert.Nil(t, ParseDate("not a date"))
	assert.Nil(t, ParseDate(""))
	assert.Nil(t, ParseDate(nil))
	assert.Nil(t, ParseDate(int64(3)))
}

func TestYearMonth(t *testing.T) {
	d := date(1980, time.March, 15)
	assert.Equal(t, int64(1980), Year(d))
	assert.Equal(t, int64(3), Month(d))
	assert.Nil(t, Year(nil))
	assert.Nil(t, Month("1980-03-15"))
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, 2.5, ToFloat("2.5"))
	assert.Equal(t, -0.25, ToFloat(" -0.25 "))
	assert.Equal(t, 3.0, ToFloat(int64(3)))
	assert.Nil(t, ToFloat(""))
	assert.Nil(t, ToFloat("abc"))
	assert.Nil(t, ToFloat("NaN"))
	assert.Nil(t, ToFloat(nil))
}

func TestToInt(t *testing.T) {
	assert.Equal(t, int64(40601), ToInt("40601"))
	assert.Equal(t, int64(1200), ToInt("1200.0"))
	assert.Equal(t, int64(7), ToInt(7.0))
	assert.Nil(t, ToInt("12.5"))
	assert.Nil(t, ToInt(""))
	assert.Nil(t, ToInt(nil))
}

func TestIntegral(t *testing.T) {
	i, ok := Integral(42)
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	_, ok = Integral(4.2)
	assert.False(t, ok)
	_, ok = Integral(math.Inf(1))
	assert.False(t, ok)
}

func TestUpper(t *testing.T) {
	assert.Equal(t, "MIAMI", Upper("miami"))
	assert.Equal(t, "FLORIDA", Upper("Florida"))
	assert.Nil(t, Upper(nil))
}

func TestEquals(t *testing.T) {
	us := Equals("United States")
	assert.True(t, us("United States"))
	assert.False(t, us("Canada"))
	assert.False(t, us(nil))
}
