// Package datetime 提供风险引擎使用的日期工具：UTC 零点日期、期限解析、年化计息与营业日调整。
package datetime

import (
	"time"
)

const dateLayout = "2006-01-02"

// FormatDate 将时间格式化为 "YYYY-MM-DD"。
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate 解析 "YYYY-MM-DD"，返回 UTC 零点。
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// MustParseDate 用于测试与常量初始化，解析失败时 panic。
func MustParseDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// StartOfDay 返回 t 所在日期的 UTC 零点，引擎内所有日期都以此归一。
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date 构造 UTC 零点日期。
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween 返回两个日期之间的自然日数。
func DaysBetween(from, to time.Time) int {
	return int(StartOfDay(to).Sub(StartOfDay(from)).Hours() / 24)
}

// YearFraction 以 ACT/365F 计算年化期限。
func YearFraction(from, to time.Time) float64 {
	return float64(DaysBetween(from, to)) / 365.0
}

// IsWeekend 判断是否为周末。
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
