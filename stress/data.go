// Package stress 定义压力测试情景，把平价冲击换算为零息冲击，并把情景施加到基准市场上。
package stress

import (
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/scenario/generator"
	"github.com/wyfcoding/riskengine/xerrors"
)

// CurveShift 一条期限结构（利率曲线、生存概率或波动率）上的冲击，Tenors 单位为年。
// 冲击按支柱时间线性插值，两端平推。
type CurveShift struct {
	Type      scenario.KeyType
	Name      string
	ShiftType generator.ShiftType
	Tenors    []float64
	Shifts    []float64
}

// Curve 冲击作用的曲线。
func (c CurveShift) Curve() scenario.CurveID {
	return scenario.CurveID{Type: c.Type, Name: c.Name}
}

// At 支柱时间 t 上的冲击。
func (c CurveShift) At(t float64) float64 {
	n := len(c.Tenors)
	if n == 0 {
		return 0
	}
	if t <= c.Tenors[0] {
		return c.Shifts[0]
	}
	if t >= c.Tenors[n-1] {
		return c.Shifts[n-1]
	}
	i, _ := slices.BinarySearch(c.Tenors, t)
	if c.Tenors[i] == t {
		return c.Shifts[i]
	}
	w := (t - c.Tenors[i-1]) / (c.Tenors[i] - c.Tenors[i-1])
	return c.Shifts[i-1] + w*(c.Shifts[i]-c.Shifts[i-1])
}

func (c CurveShift) validate() error {
	if len(c.Tenors) == 0 || len(c.Tenors) != len(c.Shifts) {
		return xerrors.Derive(xerrors.ErrDimMismatch, "%s: %d tenors, %d shifts", c.Curve(), len(c.Tenors), len(c.Shifts))
	}
	for i, t := range c.Tenors {
		if t <= 0 || (i > 0 && t <= c.Tenors[i-1]) {
			return xerrors.Configuration("%s: tenors must be positive and increasing", c.Curve())
		}
	}
	return nil
}

// SpotShift 单点风险因子（FX、权益现价）的冲击。
type SpotShift struct {
	Type      scenario.KeyType
	Name      string
	ShiftType generator.ShiftType
	Size      float64
}

// ParGroup 可按平价报价冲击的风险因子组。
type ParGroup int

const (
	ParIRCurves ParGroup = iota
	ParCapFloor
	ParCredit
)

// Group 风险因子类型所属的平价组。
func Group(t scenario.KeyType) (ParGroup, bool) {
	switch t {
	case scenario.DiscountCurve, scenario.IndexCurve, scenario.YieldCurve:
		return ParIRCurves, true
	case scenario.OptionletVolatility:
		return ParCapFloor, true
	case scenario.SurvivalProbability:
		return ParCredit, true
	}
	return 0, false
}

// Scenario 一个压力情景。Par 标记为 true 的组，其曲线冲击为平价报价（利率、上限期权平价波动率、CDS 利差）上的冲击。
type Scenario struct {
	Label  string
	Curves []CurveShift
	Spots  []SpotShift

	IRCurveParShifts  bool
	CapFloorParShifts bool
	CreditParShifts   bool
}

// ParShifts 组是否按平价冲击。
func (s *Scenario) ParShifts(g ParGroup) bool {
	switch g {
	case ParIRCurves:
		return s.IRCurveParShifts
	case ParCapFloor:
		return s.CapFloorParShifts
	default:
		return s.CreditParShifts
	}
}

func (s *Scenario) setParShifts(g ParGroup, v bool) {
	switch g {
	case ParIRCurves:
		s.IRCurveParShifts = v
	case ParCapFloor:
		s.CapFloorParShifts = v
	default:
		s.CreditParShifts = v
	}
}

func (s *Scenario) HasParShifts() bool {
	return s.IRCurveParShifts || s.CapFloorParShifts || s.CreditParShifts
}

// Clone 深拷贝。
func (s *Scenario) Clone() Scenario {
	out := *s
	out.Curves = make([]CurveShift, len(s.Curves))
	for i, c := range s.Curves {
		c.Tenors = slices.Clone(c.Tenors)
		c.Shifts = slices.Clone(c.Shifts)
		out.Curves[i] = c
	}
	out.Spots = slices.Clone(s.Spots)
	return out
}

// Validate 检查冲击定义，同一情景中同一曲线或现价只能出现一次。
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Label) == "" {
		return xerrors.Derive(xerrors.ErrStressScenario, "empty label")
	}
	curves := make(map[scenario.CurveID]bool, len(s.Curves))
	for _, c := range s.Curves {
		if err := c.validate(); err != nil {
			return xerrors.DeriveCause(xerrors.ErrStressScenario, err, "scenario %q", s.Label)
		}
		if curves[c.Curve()] {
			return xerrors.Derive(xerrors.ErrStressScenario, "scenario %q shifts %s twice", s.Label, c.Curve())
		}
		curves[c.Curve()] = true
	}
	spots := make(map[scenario.CurveID]bool, len(s.Spots))
	for _, sp := range s.Spots {
		id := scenario.CurveID{Type: sp.Type, Name: sp.Name}
		if spots[id] {
			return xerrors.Derive(xerrors.ErrStressScenario, "scenario %q shifts %s twice", s.Label, id)
		}
		spots[id] = true
	}
	return nil
}

// StressTestScenarioData 有序的压力情景集合。
type StressTestScenarioData struct {
	Scenarios []Scenario
}

// HasParShifts 任一情景含平价冲击。
func (d *StressTestScenarioData) HasParShifts() bool {
	for i := range d.Scenarios {
		if d.Scenarios[i].HasParShifts() {
			return true
		}
	}
	return false
}

// Labels 情景标签，按定义顺序。
func (d *StressTestScenarioData) Labels() []string {
	out := make([]string, len(d.Scenarios))
	for i, s := range d.Scenarios {
		out[i] = s.Label
	}
	return out
}

// Validate 检查全部情景，标签不可重复。
func (d *StressTestScenarioData) Validate() error {
	seen := make(map[string]bool, len(d.Scenarios))
	for i := range d.Scenarios {
		s := &d.Scenarios[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Label] {
			return xerrors.Derive(xerrors.ErrDuplicateID, "stress scenario %q", s.Label)
		}
		seen[s.Label] = true
	}
	return nil
}

type fileData struct {
	Scenarios []scenarioConfig `mapstructure:"scenarios" validate:"required,min=1,dive"`
}

type scenarioConfig struct {
	Label             string             `mapstructure:"label"                validate:"required"`
	IRCurveParShifts  bool               `mapstructure:"ir_curve_par_shifts"`
	CapFloorParShifts bool               `mapstructure:"cap_floor_par_shifts"`
	CreditParShifts   bool               `mapstructure:"credit_par_shifts"`
	Curves            []curveShiftConfig `mapstructure:"curves"               validate:"dive"`
	Spots             []spotShiftConfig  `mapstructure:"spots"                validate:"dive"`
}

type curveShiftConfig struct {
	Type      string    `mapstructure:"type"       validate:"required"`
	Name      string    `mapstructure:"name"       validate:"required"`
	ShiftType string    `mapstructure:"shift_type" validate:"omitempty,oneof=absolute relative"`
	Tenors    []string  `mapstructure:"tenors"     validate:"required,min=1"`
	Shifts    []float64 `mapstructure:"shifts"     validate:"required,min=1"`
}

type spotShiftConfig struct {
	Type      string  `mapstructure:"type"       validate:"required"`
	Name      string  `mapstructure:"name"       validate:"required"`
	ShiftType string  `mapstructure:"shift_type" validate:"omitempty,oneof=absolute relative"`
	Shift     float64 `mapstructure:"shift"`
}

func shiftType(s string) generator.ShiftType {
	if s == "relative" {
		return generator.RelativeShift
	}
	return generator.AbsoluteShift
}

// Load 读取 TOML 压力情景文件：
//
//	[[scenarios]]
//	label = "parallel_up"
//	ir_curve_par_shifts = true
//	[[scenarios.curves]]
//	type = "DiscountCurve"
//	name = "EUR"
//	tenors = ["1Y", "5Y"]
//	shifts = [0.001, 0.002]
func Load(path string) (*StressTestScenarioData, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrConfiguration, "read stress scenario file")
	}
	var raw fileData
	if err := v.Unmarshal(&raw); err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrConfiguration, "unmarshal stress scenario file")
	}
	if err := config.Validate(&raw); err != nil {
		return nil, err
	}
	return fromConfig(raw)
}

func fromConfig(raw fileData) (*StressTestScenarioData, error) {
	data := &StressTestScenarioData{Scenarios: make([]Scenario, 0, len(raw.Scenarios))}
	for _, sc := range raw.Scenarios {
		s := Scenario{
			Label:             sc.Label,
			IRCurveParShifts:  sc.IRCurveParShifts,
			CapFloorParShifts: sc.CapFloorParShifts,
			CreditParShifts:   sc.CreditParShifts,
		}
		for _, c := range sc.Curves {
			kt, err := scenario.ParseKeyType(c.Type)
			if err != nil {
				return nil, err
			}
			tenors := make([]float64, len(c.Tenors))
			for i, p := range c.Tenors {
				period, err := datetime.ParsePeriod(p)
				if err != nil {
					return nil, xerrors.DeriveCause(xerrors.ErrStressScenario, err, "scenario %q tenor %q", sc.Label, p)
				}
				tenors[i] = period.Years()
			}
			s.Curves = append(s.Curves, CurveShift{Type: kt, Name: c.Name, ShiftType: shiftType(c.ShiftType), Tenors: tenors, Shifts: c.Shifts})
		}
		for _, sp := range sc.Spots {
			kt, err := scenario.ParseKeyType(sp.Type)
			if err != nil {
				return nil, err
			}
			s.Spots = append(s.Spots, SpotShift{Type: kt, Name: sp.Name, ShiftType: shiftType(sp.ShiftType), Size: sp.Shift})
		}
		data.Scenarios = append(data.Scenarios, s)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}
