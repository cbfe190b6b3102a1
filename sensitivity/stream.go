package sensitivity

import (
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/scenario"
)

// SensitivityRecord 一个 (交易, 因子) 的敏感度。Gamma 为 nil 表示未计算。
type SensitivityRecord struct {
	TradeID  string   `json:"trade_id"`
	IsPar    bool     `json:"is_par"`
	Currency string   `json:"currency"`
	BaseNPV  float64  `json:"base_npv"`
	Key      string   `json:"factor"`
	Desc     string   `json:"desc"`
	Shift    float64  `json:"shift_size"`
	Delta    float64  `json:"delta"`
	Gamma    *float64 `json:"gamma,omitempty"`
}

// Stream 前向、可重置的记录迭代器。ok 为 false 表示已耗尽。
type Stream interface {
	Next() (SensitivityRecord, bool)
	Reset()
}

// CubeStream 直接输出零息立方体的 delta 与 gamma。
type CubeStream struct {
	cube    *SensitivityCube
	trade   int
	factor  int
	logger  *logging.Logger
	lastErr error
}

func NewCubeStream(sc *SensitivityCube, logger *logging.Logger) *CubeStream {
	return &CubeStream{cube: sc, logger: logging.Component(logger, "sensitivity-stream")}
}

// Err 最近一次读取立方体失败的错误；出错时流提前结束。
func (s *CubeStream) Err() error { return s.lastErr }

func (s *CubeStream) Reset() {
	s.trade, s.factor, s.lastErr = 0, 0, nil
}

func (s *CubeStream) Next() (SensitivityRecord, bool) {
	factors := s.cube.Factors()
	if len(factors) == 0 || s.lastErr != nil {
		return SensitivityRecord{}, false
	}
	if s.factor >= len(factors) {
		s.trade++
		s.factor = 0
	}
	if s.trade >= s.cube.NumIDs() {
		return SensitivityRecord{}, false
	}
	k := factors[s.factor]
	s.factor++

	rec, err := s.record(k)
	if err != nil {
		s.lastErr = err
		s.logger.Error("sensitivity stream stopped", "trade", s.cube.IDs()[s.trade], "factor", k.String(), "error", err)
		return SensitivityRecord{}, false
	}
	return rec, true
}

func (s *CubeStream) record(k scenario.RiskFactorKey) (SensitivityRecord, error) {
	base, err := s.cube.BaseNPV(s.trade)
	if err != nil {
		return SensitivityRecord{}, err
	}
	delta, err := s.cube.Delta(s.trade, k)
	if err != nil {
		return SensitivityRecord{}, err
	}
	d, _ := s.cube.Description(k)
	rec := SensitivityRecord{
		TradeID:  s.cube.IDs()[s.trade],
		Currency: s.cube.Currency(),
		BaseNPV:  base,
		Key:      k.String(),
		Desc:     d.FactorDesc(),
		Shift:    d.Shift,
		Delta:    delta,
	}
	if g, ok, err := s.cube.Gamma(s.trade, k); err != nil {
		return SensitivityRecord{}, err
	} else if ok {
		rec.Gamma = &g
	}
	return rec, nil
}

// ParSensitivityCubeStream 逐条输出 ZeroToParCube 的平价 delta：
// 按交易顺序，每个交易内按键排序，只含非零条目，不含 gamma。
type ParSensitivityCubeStream struct {
	cube    *ZeroToParCube
	trade   int
	deltas  []ParDelta
	next    int
	loaded  bool
	logger  *logging.Logger
	lastErr error
}

func NewParSensitivityCubeStream(z *ZeroToParCube, logger *logging.Logger) *ParSensitivityCubeStream {
	return &ParSensitivityCubeStream{cube: z, logger: logging.Component(logger, "par-sensitivity-stream")}
}

// Err 最近一次平价转换失败的错误；出错时流提前结束。
func (s *ParSensitivityCubeStream) Err() error { return s.lastErr }

func (s *ParSensitivityCubeStream) Reset() {
	s.trade, s.next, s.deltas, s.loaded, s.lastErr = 0, 0, nil, false, nil
}

func (s *ParSensitivityCubeStream) Next() (SensitivityRecord, bool) {
	ids := s.cube.TradeIDs()
	if s.lastErr != nil {
		return SensitivityRecord{}, false
	}
	for s.trade < len(ids) {
		if !s.loaded {
			ci, ti, err := s.cube.Lookup(ids[s.trade])
			if err == nil {
				s.deltas, err = s.cube.SortedParDeltasAt(ci, ti)
			}
			if err != nil {
				s.lastErr = err
				s.logger.Error("par sensitivity stream stopped", "trade", ids[s.trade], "error", err)
				return SensitivityRecord{}, false
			}
			s.next, s.loaded = 0, true
		}
		if s.next < len(s.deltas) {
			break
		}
		s.trade++
		s.loaded = false
	}
	if s.trade >= len(ids) {
		return SensitivityRecord{}, false
	}

	id := ids[s.trade]
	pd := s.deltas[s.next]
	s.next++
	base, err := s.cube.BaseNPV(id)
	if err != nil {
		s.lastErr = err
		return SensitivityRecord{}, false
	}
	ci, _, _ := s.cube.Lookup(id)
	d := s.cube.Description(ci, pd.Key)
	return SensitivityRecord{
		TradeID:  id,
		IsPar:    true,
		Currency: s.cube.Currency(),
		BaseNPV:  base,
		Key:      pd.Key.String(),
		Desc:     d.FactorDesc(),
		Shift:    d.Shift,
		Delta:    pd.Value,
	}, true
}

// Collect 读出流中剩余的全部记录。
func Collect(s Stream) []SensitivityRecord {
	var out []SensitivityRecord
	for {
		rec, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}
