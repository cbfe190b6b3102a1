package cube

import (
	"slices"
	"time"

	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/xerrors"
)

// 常用的场景数据名称。
const (
	DataNumeraire = "Numeraire"
)

// ScenarioData 在重估过程中按 (日期, 样本) 保存的市场量（计价单位、汇率等），
// 与 NPV 立方体共用日期网格与样本数，供 SIMM 等后处理读取。
type ScenarioData struct {
	dates   []time.Time
	samples int
	names   []string
	index   map[string]int
	data    []float64
}

// NewScenarioData names 为需要记录的数据项名称，不可重复。
func NewScenarioData(dates []time.Time, samples int, names []string) (*ScenarioData, error) {
	if samples < 1 {
		return nil, xerrors.Derive(xerrors.ErrInvalidDimension, "samples=%d", samples)
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := index[n]; dup {
			return nil, xerrors.Derive(xerrors.ErrDuplicateID, "scenario data item %q", n)
		}
		index[n] = i
	}
	ds := make([]time.Time, len(dates))
	for i, d := range dates {
		ds[i] = datetime.StartOfDay(d)
	}
	return &ScenarioData{
		dates:   ds,
		samples: samples,
		names:   slices.Clone(names),
		index:   index,
		data:    make([]float64, len(ds)*samples*len(names)),
	}, nil
}

func (s *ScenarioData) NumDates() int      { return len(s.dates) }
func (s *ScenarioData) Samples() int       { return s.samples }
func (s *ScenarioData) Dates() []time.Time { return s.dates }
func (s *ScenarioData) Names() []string    { return s.names }

func (s *ScenarioData) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *ScenarioData) offset(date, sample int, name string) (int, error) {
	k, ok := s.index[name]
	if !ok {
		return 0, xerrors.Derive(xerrors.ErrMissingRiskFactor, "scenario data item %q", name)
	}
	if date < 0 || date >= len(s.dates) || sample < 0 || sample >= s.samples {
		return 0, xerrors.Derive(xerrors.ErrIndexOutOfRange, "(date=%d, sample=%d) outside %dx%d", date, sample, len(s.dates), s.samples)
	}
	return (date*s.samples+sample)*len(s.names) + k, nil
}

func (s *ScenarioData) Get(date, sample int, name string) (float64, error) {
	o, err := s.offset(date, sample, name)
	if err != nil {
		return 0, err
	}
	return s.data[o], nil
}

func (s *ScenarioData) Set(value float64, date, sample int, name string) error {
	o, err := s.offset(date, sample, name)
	if err != nil {
		return err
	}
	s.data[o] = value
	return nil
}
