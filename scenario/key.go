// Package scenario 定义风险因子键与市场情景（Simple、Delta、Spread 三种表示）。
//
// 情景对象不做内部加锁：构造期间由单一所有者写入，发布后只读。
package scenario

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/wyfcoding/riskengine/xerrors"
)

// KeyType 风险因子类型。
type KeyType int

const (
	None KeyType = iota
	DiscountCurve
	IndexCurve
	YieldCurve
	FXSpot
	FXVolatility
	OptionletVolatility
	SwaptionVolatility
	SurvivalProbability
	CDSVolatility
	EquitySpot
	EquityVolatility
	DividendYield
	ZeroInflationCurve
	RecoveryRate
)

var keyTypeNames = [...]string{
	None:                "None",
	DiscountCurve:       "DiscountCurve",
	IndexCurve:          "IndexCurve",
	YieldCurve:          "YieldCurve",
	FXSpot:              "FXSpot",
	FXVolatility:        "FXVolatility",
	OptionletVolatility: "OptionletVolatility",
	SwaptionVolatility:  "SwaptionVolatility",
	SurvivalProbability: "SurvivalProbability",
	CDSVolatility:       "CDSVolatility",
	EquitySpot:          "EquitySpot",
	EquityVolatility:    "EquityVolatility",
	DividendYield:       "DividendYield",
	ZeroInflationCurve:  "ZeroInflationCurve",
	RecoveryRate:        "RecoveryRate",
}

func (t KeyType) String() string {
	if t >= 0 && int(t) < len(keyTypeNames) {
		return keyTypeNames[t]
	}
	return "KeyType(" + strconv.Itoa(int(t)) + ")"
}

// ParseKeyType 大小写不敏感地解析类型名（viper 会把 map 键转为小写）。
func ParseKeyType(s string) (KeyType, error) {
	for i, n := range keyTypeNames {
		if i > 0 && strings.EqualFold(n, strings.TrimSpace(s)) {
			return KeyType(i), nil
		}
	}
	return None, xerrors.Derive(xerrors.ErrUnknownKeyType, "%q", s)
}

// IsCurve 以贴现因子存储的期限结构。
func (t KeyType) IsCurve() bool {
	switch t {
	case DiscountCurve, IndexCurve, YieldCurve, DividendYield, ZeroInflationCurve:
		return true
	}
	return false
}

// IsVolatility 波动率类。
func (t KeyType) IsVolatility() bool {
	switch t {
	case FXVolatility, OptionletVolatility, SwaptionVolatility, CDSVolatility, EquityVolatility:
		return true
	}
	return false
}

// IsSpot 现价类。
func (t KeyType) IsSpot() bool {
	return t == FXSpot || t == EquitySpot
}

// RiskFactorKey 唯一标识一个标量市场量，可直接作为 map 键。
type RiskFactorKey struct {
	Type  KeyType
	Name  string
	Index int
}

// NewKey 构造键。
func NewKey(t KeyType, name string, index int) RiskFactorKey {
	return RiskFactorKey{Type: t, Name: name, Index: index}
}

// String 形如 "DiscountCurve/EUR/3"。
func (k RiskFactorKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Type, k.Name, k.Index)
}

// Compare 按 (Type, Name, Index) 排序。
func (k RiskFactorKey) Compare(o RiskFactorKey) int {
	if c := cmp.Compare(k.Type, o.Type); c != 0 {
		return c
	}
	if c := strings.Compare(k.Name, o.Name); c != 0 {
		return c
	}
	return cmp.Compare(k.Index, o.Index)
}

// Less 严格小于。
func (k RiskFactorKey) Less(o RiskFactorKey) bool {
	return k.Compare(o) < 0
}

// ParseKey 解析 String 的输出；名称中可以包含 '/'。
func ParseKey(s string) (RiskFactorKey, error) {
	first := strings.Index(s, "/")
	last := strings.LastIndex(s, "/")
	if first < 0 || first == last {
		return RiskFactorKey{}, xerrors.Derive(xerrors.ErrInvalidKey, "%q", s)
	}
	t, err := ParseKeyType(s[:first])
	if err != nil {
		return RiskFactorKey{}, err
	}
	idx, err := strconv.Atoi(s[last+1:])
	if err != nil || idx < 0 {
		return RiskFactorKey{}, xerrors.Derive(xerrors.ErrInvalidKey, "bad index in %q", s)
	}
	return RiskFactorKey{Type: t, Name: s[first+1 : last], Index: idx}, nil
}

// SortKeys 原地排序。
func SortKeys(keys []RiskFactorKey) {
	slices.SortFunc(keys, RiskFactorKey.Compare)
}

// CurveID 标识一条曲线或一个曲面（不含下标）。
type CurveID struct {
	Type KeyType
	Name string
}

// Curve 返回键所属的曲线。
func (k RiskFactorKey) Curve() CurveID {
	return CurveID{Type: k.Type, Name: k.Name}
}

func (c CurveID) String() string {
	return c.Type.String() + "/" + c.Name
}
