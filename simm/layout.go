package simm

import (
	"github.com/wyfcoding/riskengine/xerrors"
)

// SensitivityLayout 描述净额集敏感度在立方体 depth 维上的排布：
//
//	0                      NPV
//	IR delta  币种 × 期限
//	IR vega   币种 × 到期
//	FX delta  除计算币种外的每个币种
//	FX vega   除计算币种外的币种 × 到期
//
// Currencies[0] 为计算币种。
type SensitivityLayout struct {
	currencies []string
	index      map[string]int
	tenors     int
}

func NewSensitivityLayout(currencies []string, numTenors int) (*SensitivityLayout, error) {
	if len(currencies) == 0 || numTenors <= 0 {
		return nil, xerrors.Derive(xerrors.ErrEmptyData, "layout needs currencies and tenors")
	}
	l := &SensitivityLayout{index: make(map[string]int, len(currencies)), tenors: numTenors}
	for i, c := range currencies {
		if len(c) != 3 {
			return nil, xerrors.Configuration("invalid currency code %q", c)
		}
		if _, dup := l.index[c]; dup {
			return nil, xerrors.Derive(xerrors.ErrDuplicateID, "currency %s", c)
		}
		l.index[c] = i
		l.currencies = append(l.currencies, c)
	}
	return l, nil
}

func (l *SensitivityLayout) Currencies() []string { return l.currencies }

// CalculationCurrency 第一个币种。
func (l *SensitivityLayout) CalculationCurrency() string { return l.currencies[0] }

func (l *SensitivityLayout) NumTenors() int { return l.tenors }

func (l *SensitivityLayout) ccy(c string) (int, error) {
	i, ok := l.index[c]
	if !ok {
		return 0, xerrors.Derive(xerrors.ErrMissingRiskFactor, "currency %s not in SIMM layout", c)
	}
	return i, nil
}

func (l *SensitivityLayout) tenor(k int) error {
	if k < 0 || k >= l.tenors {
		return xerrors.Derive(xerrors.ErrIndexOutOfRange, "tenor bucket %d of %d", k, l.tenors)
	}
	return nil
}

// NPVDepth NPV 所在的 depth。
func (l *SensitivityLayout) NPVDepth() int { return 0 }

func (l *SensitivityLayout) IRDelta(ccy string, k int) (int, error) {
	ci, err := l.ccy(ccy)
	if err != nil {
		return 0, err
	}
	if err := l.tenor(k); err != nil {
		return 0, err
	}
	return 1 + ci*l.tenors + k, nil
}

func (l *SensitivityLayout) IRVega(ccy string, k int) (int, error) {
	ci, err := l.ccy(ccy)
	if err != nil {
		return 0, err
	}
	if err := l.tenor(k); err != nil {
		return 0, err
	}
	return 1 + (len(l.currencies)+ci)*l.tenors + k, nil
}

func (l *SensitivityLayout) fxBase() int { return 1 + 2*len(l.currencies)*l.tenors }

// FXDelta 外币对计算币种的即期敏感度 dV/dS；计算币种本身没有 FX delta。
func (l *SensitivityLayout) FXDelta(ccy string) (int, error) {
	ci, err := l.ccy(ccy)
	if err != nil {
		return 0, err
	}
	if ci == 0 {
		return 0, xerrors.InvalidArg("no FX delta for the calculation currency")
	}
	return l.fxBase() + ci - 1, nil
}

func (l *SensitivityLayout) FXVega(ccy string, k int) (int, error) {
	ci, err := l.ccy(ccy)
	if err != nil {
		return 0, err
	}
	if ci == 0 {
		return 0, xerrors.InvalidArg("no FX vega for the calculation currency")
	}
	if err := l.tenor(k); err != nil {
		return 0, err
	}
	return l.fxBase() + len(l.currencies) - 1 + (ci-1)*l.tenors + k, nil
}

// Depth 立方体所需的 depth。
func (l *SensitivityLayout) Depth() int {
	n := len(l.currencies)
	return l.fxBase() + (n - 1) + (n-1)*l.tenors
}
