package scenario

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/xerrors"
)

var csvHeader = []string{"Date", "Sample", "Label", "Numeraire"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// CSVWriter 逐行写出情景：Date,Sample,Label,Numeraire,<keys...>。
// 浮点数以最短可往返格式写出，读回后逐位相等。
type CSVWriter struct {
	w    *csv.Writer
	keys []RiskFactorKey
}

// NewCSVWriter 创建写入器。
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write 写一条情景。首条情景决定表头，后续情景的键集合必须一致。
func (cw *CSVWriter) Write(sample int, s Scenario) error {
	if cw.keys == nil {
		cw.keys = s.Keys()
		header := slices.Clone(csvHeader)
		for _, k := range cw.keys {
			header = append(header, k.String())
		}
		if err := cw.w.Write(header); err != nil {
			return err
		}
	} else if len(s.Keys()) != len(cw.keys) {
		return xerrors.Derive(xerrors.ErrMalformedCSV, "scenario at %s sample %d has %d keys, header has %d",
			datetime.FormatDate(s.AsOf()), sample, len(s.Keys()), len(cw.keys))
	}

	row := make([]string, 0, len(csvHeader)+len(cw.keys))
	row = append(row, datetime.FormatDate(s.AsOf()), strconv.Itoa(sample), s.Label(), formatFloat(s.Numeraire()))
	for _, k := range cw.keys {
		v, err := s.Get(k)
		if err != nil {
			return err
		}
		row = append(row, formatFloat(v))
	}
	return cw.w.Write(row)
}

// Flush 刷新缓冲并返回写错误。
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}

// Set 按 (日期, 样本) 组织的情景集合。
type Set struct {
	Dates     []time.Time
	Samples   int
	Keys      []RiskFactorKey
	scenarios map[time.Time][]Scenario
}

// Get 读取 (date, sample) 处的情景。
func (st *Set) Get(date time.Time, sample int) (Scenario, error) {
	row, ok := st.scenarios[date]
	if !ok {
		return nil, xerrors.Derive(xerrors.ErrUnknownDate, "%s", datetime.FormatDate(date))
	}
	if sample < 0 || sample >= len(row) || row[sample] == nil {
		return nil, xerrors.Derive(xerrors.ErrIndexOutOfRange, "sample %d at %s", sample, datetime.FormatDate(date))
	}
	return row[sample], nil
}

// ReadCSV 读取 CSVWriter 的输出，所有情景共享一份冻结的键表。
func ReadCSV(r io.Reader) (*Set, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, xerrors.DeriveCause(xerrors.ErrMalformedCSV, err, "missing header")
	}
	if len(header) < len(csvHeader) || !slices.Equal(header[:len(csvHeader)], csvHeader) {
		return nil, xerrors.Derive(xerrors.ErrMalformedCSV, "unexpected header %v", header)
	}

	keys := make([]RiskFactorKey, 0, len(header)-len(csvHeader))
	for _, h := range header[len(csvHeader):] {
		k, err := ParseKey(h)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sd, err := NewSharedData(keys, Coordinates{})
	if err != nil {
		return nil, err
	}
	sd.Freeze()

	set := &Set{Keys: keys, scenarios: make(map[time.Time][]Scenario)}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, xerrors.DeriveCause(xerrors.ErrMalformedCSV, err, "line %d", line)
		}
		date, err := datetime.ParseDate(rec[0])
		if err != nil {
			return nil, xerrors.DeriveCause(xerrors.ErrMalformedCSV, err, "line %d date", line)
		}
		sample, err := strconv.Atoi(rec[1])
		if err != nil || sample < 0 {
			return nil, xerrors.Derive(xerrors.ErrMalformedCSV, "line %d sample %q", line, rec[1])
		}
		num, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, xerrors.DeriveCause(xerrors.ErrMalformedCSV, err, "line %d numeraire", line)
		}

		s := NewSimpleScenarioWithShared(date, rec[2], num, sd)
		for i, k := range keys {
			v, err := strconv.ParseFloat(rec[len(csvHeader)+i], 64)
			if err != nil {
				return nil, xerrors.DeriveCause(xerrors.ErrMalformedCSV, err, "line %d key %s", line, k)
			}
			s.data[i] = v
		}

		row, seen := set.scenarios[date]
		if !seen {
			set.Dates = append(set.Dates, date)
		}
		for len(row) <= sample {
			row = append(row, nil)
		}
		row[sample] = s
		set.scenarios[date] = row
		if sample+1 > set.Samples {
			set.Samples = sample + 1
		}
	}
	slices.SortFunc(set.Dates, time.Time.Compare)
	return set, nil
}
