package cube

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/xerrors"
)

var (
	asOf  = datetime.Date(2024, time.January, 15)
	dates = []time.Time{
		datetime.Date(2024, time.July, 15),
		datetime.Date(2025, time.January, 15),
	}
)

func newFilled(t *testing.T, ids []string, base float64) *InMemoryCube[float64] {
	t.Helper()
	c, err := NewInMemoryCube[float64](asOf, ids, dates, 3, 2)
	require.NoError(t, err)
	for i := range ids {
		for k := 0; k < 2; k++ {
			require.NoError(t, c.SetT0(base+float64(i)+0.5*float64(k), i, k))
			for j := range dates {
				for s := 0; s < 3; s++ {
					require.NoError(t, c.Set(base+float64(100*i+10*j+s)+0.5*float64(k), i, j, s, k))
				}
			}
		}
	}
	return c
}

func TestInMemoryCube_Bounds(t *testing.T) {
	c := newFilled(t, []string{"a", "b"}, 0)

	_, err := c.Get(2, 0, 0, 0)
	assert.True(t, errors.Is(err, xerrors.ErrIndexOutOfRange))
	assert.True(t, errors.Is(c.Set(1, 0, 2, 0, 0), xerrors.ErrIndexOutOfRange))
	_, err = c.GetT0(0, 2)
	assert.True(t, errors.Is(err, xerrors.ErrIndexOutOfRange))

	v, err := GetByKey(c, "b", dates[1], 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 112.5, v)

	_, err = GetByKey(c, "zzz", dates[0], 0, 0)
	assert.True(t, errors.Is(err, xerrors.ErrUnknownID))
	_, err = GetByKey(c, "a", asOf, 0, 0)
	assert.True(t, errors.Is(err, xerrors.ErrUnknownDate))

	assert.Equal(t, map[string]int{"a": 0, "b": 1}, c.IDsAndIndexes())
}

func TestInMemoryCube_Validation(t *testing.T) {
	_, err := NewInMemoryCube[float64](asOf, []string{"a", "a"}, dates, 1, 1)
	assert.True(t, errors.Is(err, xerrors.ErrDuplicateID))

	_, err = NewInMemoryCube[float64](asOf, []string{"a"}, []time.Time{dates[1], dates[0]}, 1, 1)
	assert.True(t, errors.Is(err, xerrors.ErrInvalidDateGrid))

	_, err = NewInMemoryCube[float32](asOf, []string{"a"}, dates, 0, 1)
	assert.True(t, errors.Is(err, xerrors.ErrInvalidDimension))
}

func TestNewCube_Float32(t *testing.T) {
	c, err := NewCube("float32", asOf, []string{"a"}, dates, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "float32", Precision(c))
	require.NoError(t, c.Set(1.0/3.0, 0, 0, 0, 0))
	v, _ := c.Get(0, 0, 0, 0)
	assert.Equal(t, float64(float32(1.0/3.0)), v)
}

func TestJointCube_DisjointPassThrough(t *testing.T) {
	a := newFilled(t, []string{"t2", "t1"}, 0)
	b := newFilled(t, []string{"t3"}, 1000)

	j, err := NewJointCube([]NPVCube{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, j.IDs())

	for _, id := range j.IDs() {
		src := NPVCube(a)
		if id == "t3" {
			src = b
		}
		for k := 0; k < 2; k++ {
			want, _ := GetT0ByKey(src, id, k)
			got, err := GetT0ByKey(j, id, k)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			for _, d := range dates {
				for s := 0; s < 3; s++ {
					want, _ := GetByKey(src, id, d, s, k)
					got, err := GetByKey(j, id, d, s, k)
					require.NoError(t, err)
					assert.Equal(t, want, got, "id=%s", id)
				}
			}
		}
	}

	require.NoError(t, SetByKey(j, 42, "t3", dates[0], 1, 0))
	v, _ := GetByKey(b, "t3", dates[0], 1, 0)
	assert.Equal(t, 42.0, v)
}

func TestJointCube_DuplicateAggregation(t *testing.T) {
	a := newFilled(t, []string{"x", "y"}, 0)
	b := newFilled(t, []string{"x"}, 1000)

	_, err := NewJointCube([]NPVCube{a, b})
	assert.True(t, errors.Is(err, xerrors.ErrDuplicateID))

	j, err := NewJointCube([]NPVCube{a, b}, RequireUniqueIDs(false))
	require.NoError(t, err)

	x := j.IDsAndIndexes()["x"]
	va, _ := a.Get(0, 1, 2, 1)
	vb, _ := b.Get(0, 1, 2, 1)
	got, err := j.Get(x, 1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, va+vb, got)

	t0a, _ := a.GetT0(0, 0)
	t0b, _ := b.GetT0(0, 0)
	got, err = j.GetT0(x, 0)
	require.NoError(t, err)
	assert.Equal(t, t0a+t0b, got)

	err = j.Set(1, x, 0, 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrAmbiguousWrite))
	assert.Contains(t, err.Error(), `"x"`)
	assert.True(t, errors.Is(j.SetT0(1, x, 0), xerrors.ErrAmbiguousWrite))

	y := j.IDsAndIndexes()["y"]
	assert.NoError(t, j.Set(7, y, 0, 0, 0))
}

func TestJointCube_Options(t *testing.T) {
	a := newFilled(t, []string{"x", "y"}, 0)
	b := newFilled(t, []string{"x"}, 1000)

	j, err := NewJointCube([]NPVCube{a, b}, WithIDs([]string{"x"}), RequireUniqueIDs(false), WithAccumulator(math.Max, math.Inf(-1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, j.IDs())
	v, _ := j.Get(0, 0, 0, 0)
	assert.Equal(t, 1000.0, v)

	_, err = NewJointCube([]NPVCube{a, b}, WithIDs([]string{"nope"}), RequireUniqueIDs(false))
	assert.True(t, errors.Is(err, xerrors.ErrUnknownID))

	other, err := NewInMemoryCube[float64](asOf, []string{"z"}, dates[:1], 3, 2)
	require.NoError(t, err)
	_, err = NewJointCube([]NPVCube{a, other})
	assert.True(t, errors.Is(err, xerrors.ErrIncompatibleCubes))
}

func TestExprAccumulator(t *testing.T) {
	acc, err := NewExprAccumulator("acc + 2 * value")
	require.NoError(t, err)
	assert.Equal(t, 7.0, acc(1, 3))

	acc, err = AccumulatorFromConfig("")
	require.NoError(t, err)
	assert.Equal(t, 4.0, acc(1, 3))

	_, err = NewExprAccumulator("acc +")
	assert.True(t, errors.Is(err, xerrors.ErrInvalidAccumulator))
}

func TestScenarioData(t *testing.T) {
	sd, err := NewScenarioData(dates, 2, []string{DataNumeraire, "FXSpot/EURUSD/0"})
	require.NoError(t, err)
	require.NoError(t, sd.Set(1.25, 1, 1, "FXSpot/EURUSD/0"))
	v, err := sd.Get(1, 1, "FXSpot/EURUSD/0")
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)

	_, err = sd.Get(0, 0, "EquitySpot/X/0")
	assert.True(t, errors.Is(err, xerrors.ErrMissingRiskFactor))
	_, err = sd.Get(2, 0, DataNumeraire)
	assert.True(t, errors.Is(err, xerrors.ErrIndexOutOfRange))
}

func assertSameCube(t *testing.T, want, got NPVCube) {
	t.Helper()
	require.True(t, SameShape(want, got))
	require.Equal(t, want.IDs(), got.IDs())
	for i := 0; i < want.NumIDs(); i++ {
		for k := 0; k < want.Depth(); k++ {
			w, _ := want.GetT0(i, k)
			g, _ := got.GetT0(i, k)
			assert.Equal(t, w, g)
			for j := 0; j < want.NumDates(); j++ {
				for s := 0; s < want.Samples(); s++ {
					w, _ := want.Get(i, j, s, k)
					g, _ := got.Get(i, j, s, k)
					assert.Equal(t, w, g)
				}
			}
		}
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newFilled(t, []string{"a", "b", "c"}, 0.125)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, c))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "float64", Precision(got))
	assertSameCube(t, c, got)
}

func TestCodec_Corrupt(t *testing.T) {
	_, err := Decode(strings.NewReader("not gzip"))
	assert.True(t, errors.Is(err, xerrors.ErrCorruptCube))

	c := newFilled(t, []string{"a"}, 0)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, c))
	raw := buf.Bytes()

	// 截断压缩流
	_, err = Decode(bytes.NewReader(raw[:len(raw)/2]))
	assert.Error(t, err)

	for _, tc := range []struct {
		name           string
		samples, depth uint32
	}{
		{"dimension over limit", math.MaxUint32, math.MaxUint32},
		{"cell product over limit", 1 << 20, 1 << 20},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(encodeHeader(t, tc.samples, tc.depth)))
			assert.True(t, errors.Is(err, xerrors.ErrCorruptCube))
		})
	}
}

// encodeHeader 只写出一个 id、一个日期和给定样本数与深度的头部，不含数据。
func encodeHeader(t *testing.T, samples, depth uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	e := &encoder{w: zw}
	e.bytes([]byte(codecMagic))
	e.u16(codecVersion)
	e.u8(8)
	e.date(asOf)
	e.u32(1)
	e.str("a")
	e.u32(1)
	e.date(dates[0])
	e.u32(samples)
	e.u32(depth)
	require.NoError(t, e.err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestCellsWithin(t *testing.T) {
	assert.True(t, cellsWithin(100, 2, 5, 10))
	assert.False(t, cellsWithin(100, 2, 5, 11))
	assert.True(t, cellsWithin(100, 0, 1<<24, 1<<24))
	assert.False(t, cellsWithin(maxCells, 1<<24, 1<<24, 1<<24, 1<<24))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(config.CubeConfig{Store: "file", Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)

	c := newFilled(t, []string{"a", "b"}, 3)
	require.NoError(t, s.Save(ctx, "run1", c))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run1"}, names)

	got, err := s.Load(ctx, "run1")
	require.NoError(t, err)
	assertSameCube(t, c, got)

	_, err = s.Load(ctx, "missing")
	assert.Equal(t, xerrors.ErrNotFound, xerrors.TypeOf(err))
}

type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) Upload(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[name] = b
	return nil
}

func (m *memStorage) Download(_ context.Context, name string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[name])), nil
}

func (m *memStorage) Delete(_ context.Context, name string) error {
	delete(m.objects, name)
	return nil
}

func (m *memStorage) Exists(_ context.Context, name string) (bool, error) {
	_, ok := m.objects[name]
	return ok, nil
}

func (m *memStorage) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func TestObjectStore(t *testing.T) {
	ctx := context.Background()
	backend := &memStorage{objects: map[string][]byte{}}
	s, err := NewStore(config.CubeConfig{Store: "minio", Prefix: "cubes/"}, backend, nil)
	require.NoError(t, err)

	c := newFilled(t, []string{"a"}, 9)
	require.NoError(t, s.Save(ctx, "eod", c))
	assert.Contains(t, backend.objects, "cubes/eod.cube.gz")

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"eod"}, names)

	got, err := s.Load(ctx, "eod")
	require.NoError(t, err)
	assertSameCube(t, c, got)

	_, err = NewStore(config.CubeConfig{Store: "minio"}, nil, nil)
	assert.Equal(t, xerrors.ErrConfiguration, xerrors.TypeOf(err))
}
