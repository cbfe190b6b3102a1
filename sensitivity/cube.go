// Package sensitivity 计算零息敏感度、将其转换到平价空间，并以记录流的形式输出。
package sensitivity

import (
	"slices"
	"time"

	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// SensitivityCube 以 NPV 立方体保存敏感度重估结果：T0 为基准 NPV，
// 样本维按情景下标排列（0 为基准），日期维只有估值日一个点。
type SensitivityCube struct {
	npv      cube.NPVCube
	currency string
	descs    []scenario.Description
	up       map[scenario.RiskFactorKey]int
	down     map[scenario.RiskFactorKey]int
	factors  []scenario.RiskFactorKey
}

// NewSensitivityCube descs 与立方体样本一一对应，descs[0] 必须为基准情景。
func NewSensitivityCube(npv cube.NPVCube, descs []scenario.Description, currency string) (*SensitivityCube, error) {
	if npv.Samples() != len(descs) || npv.NumDates() != 1 {
		return nil, xerrors.Derive(xerrors.ErrDimMismatch, "cube has %d samples and %d dates for %d scenario descriptions",
			npv.Samples(), npv.NumDates(), len(descs))
	}
	if len(descs) == 0 || descs[0].Direction != scenario.Base {
		return nil, xerrors.Configuration("first sensitivity scenario must be the base scenario")
	}
	sc := &SensitivityCube{
		npv:      npv,
		currency: currency,
		descs:    slices.Clone(descs),
		up:       make(map[scenario.RiskFactorKey]int),
		down:     make(map[scenario.RiskFactorKey]int),
	}
	for i, d := range descs[1:] {
		switch d.Direction {
		case scenario.Up:
			if _, dup := sc.up[d.Key]; dup {
				return nil, xerrors.Derive(xerrors.ErrDuplicateID, "two up scenarios for %s", d.Key)
			}
			sc.up[d.Key] = i + 1
			sc.factors = append(sc.factors, d.Key)
		case scenario.Down:
			sc.down[d.Key] = i + 1
		default:
			return nil, xerrors.Configuration("base scenario at position %d", i+1)
		}
	}
	scenario.SortKeys(sc.factors)
	return sc, nil
}

// NewEmptySensitivityCube 按交易与情景描述分配立方体，由 Analysis 填充。
func NewEmptySensitivityCube(base scenario.Scenario, ids []string, descs []scenario.Description, currency string) (*SensitivityCube, error) {
	npv, err := cube.NewCube("float64", base.AsOf(), ids, []time.Time{base.AsOf()}, len(descs), 1)
	if err != nil {
		return nil, err
	}
	return NewSensitivityCube(npv, descs, currency)
}

func (sc *SensitivityCube) NPVCube() cube.NPVCube { return sc.npv }
func (sc *SensitivityCube) Currency() string      { return sc.currency }
func (sc *SensitivityCube) IDs() []string         { return sc.npv.IDs() }
func (sc *SensitivityCube) NumIDs() int           { return sc.npv.NumIDs() }

// Factors 有上冲击情景的风险因子，有序。
func (sc *SensitivityCube) Factors() []scenario.RiskFactorKey { return sc.factors }

// Descriptions 全部情景描述。
func (sc *SensitivityCube) Descriptions() []scenario.Description { return sc.descs }

// Description 因子上冲击情景的描述。
func (sc *SensitivityCube) Description(k scenario.RiskFactorKey) (scenario.Description, bool) {
	i, ok := sc.up[k]
	if !ok {
		return scenario.Description{}, false
	}
	return sc.descs[i], true
}

// ShiftSize 因子的冲击大小。
func (sc *SensitivityCube) ShiftSize(k scenario.RiskFactorKey) (float64, bool) {
	d, ok := sc.Description(k)
	return d.Shift, ok
}

// IndexOf 交易下标。
func (sc *SensitivityCube) IndexOf(id string) (int, error) {
	return cube.IndexOfID(sc.npv, id)
}

func (sc *SensitivityCube) BaseNPV(trade int) (float64, error) {
	return sc.npv.GetT0(trade, 0)
}

func (sc *SensitivityCube) scenarioNPV(trade, scen int) (float64, error) {
	return sc.npv.Get(trade, 0, scen, 0)
}

// Delta 上冲击 NPV 减基准 NPV。
func (sc *SensitivityCube) Delta(trade int, k scenario.RiskFactorKey) (float64, error) {
	i, ok := sc.up[k]
	if !ok {
		return 0, xerrors.Derive(xerrors.ErrMissingRiskFactor, "no up scenario for %s", k)
	}
	up, err := sc.scenarioNPV(trade, i)
	if err != nil {
		return 0, err
	}
	base, err := sc.BaseNPV(trade)
	if err != nil {
		return 0, err
	}
	return up - base, nil
}

// Gamma up + down - 2 * base；没有下冲击情景时 ok 为 false。
func (sc *SensitivityCube) Gamma(trade int, k scenario.RiskFactorKey) (gamma float64, ok bool, err error) {
	iu, hasUp := sc.up[k]
	id, hasDown := sc.down[k]
	if !hasUp || !hasDown {
		return 0, false, nil
	}
	up, err := sc.scenarioNPV(trade, iu)
	if err != nil {
		return 0, false, err
	}
	down, err := sc.scenarioNPV(trade, id)
	if err != nil {
		return 0, false, err
	}
	base, err := sc.BaseNPV(trade)
	if err != nil {
		return 0, false, err
	}
	return up + down - 2*base, true, nil
}

// Deltas 交易对全部因子的零息 delta。
func (sc *SensitivityCube) Deltas(trade int) (map[scenario.RiskFactorKey]float64, error) {
	out := make(map[scenario.RiskFactorKey]float64, len(sc.factors))
	for _, k := range sc.factors {
		d, err := sc.Delta(trade, k)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}
