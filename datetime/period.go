package datetime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit 期限单位。
type Unit byte

const (
	Days   Unit = 'D'
	Weeks  Unit = 'W'
	Months Unit = 'M'
	Years  Unit = 'Y'
)

// Period 表示 "3M"、"10Y" 形式的期限。
type Period struct {
	Length int
	Unit   Unit
}

// ParsePeriod 解析期限字符串，大小写不敏感。
func ParsePeriod(s string) (Period, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	u := Unit(s[len(s)-1])
	switch u {
	case Days, Weeks, Months, Years:
	default:
		return Period{}, fmt.Errorf("invalid period unit in %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return Period{}, fmt.Errorf("invalid period length in %q", s)
	}
	return Period{Length: n, Unit: u}, nil
}

// String 返回 "3M" 形式。
func (p Period) String() string {
	return strconv.Itoa(p.Length) + string(p.Unit)
}

// AddTo 将期限加到日期上，月末按 Go 的归一化规则处理后回退到当月最后一天。
func (p Period) AddTo(t time.Time) time.Time {
	switch p.Unit {
	case Days:
		return t.AddDate(0, 0, p.Length)
	case Weeks:
		return t.AddDate(0, 0, 7*p.Length)
	case Months:
		return addMonths(t, p.Length)
	case Years:
		return addMonths(t, 12*p.Length)
	}
	return t
}

// Years 近似年数，用于参数表中期限到时间的映射。
func (p Period) Years() float64 {
	switch p.Unit {
	case Days:
		return float64(p.Length) / 365.0
	case Weeks:
		return float64(7*p.Length) / 365.0
	case Months:
		return float64(p.Length) / 12.0
	default:
		return float64(p.Length)
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// ParsePeriods 解析逗号分隔的期限列表。
func ParsePeriods(s string) ([]Period, error) {
	var out []Period
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePeriod(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
