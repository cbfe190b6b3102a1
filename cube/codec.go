package cube

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/wyfcoding/riskengine/xerrors"
)

const (
	codecMagic   = "NPVC"
	codecVersion = uint16(1)
)

// Precision 返回立方体的存储精度名称，非内存立方体按 float64 处理。
func Precision(c NPVCube) string {
	if _, ok := c.(*InMemoryCube[float32]); ok {
		return "float32"
	}
	return "float64"
}

// Encode 将立方体以 gzip 压缩的小端二进制格式写出：
// 头部（魔数、版本、精度、估值日、id、日期、样本、深度），随后 T0 切片与主体数据。
func Encode(w io.Writer, c NPVCube) error {
	zw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return xerrors.Internal("gzip writer", err)
	}
	bw := bufio.NewWriter(zw)
	e := &encoder{w: bw}

	f32 := Precision(c) == "float32"
	e.bytes([]byte(codecMagic))
	e.u16(codecVersion)
	if f32 {
		e.u8(4)
	} else {
		e.u8(8)
	}
	e.date(c.AsOf())
	e.u32(uint32(c.NumIDs()))
	for _, id := range c.IDs() {
		e.str(id)
	}
	e.u32(uint32(c.NumDates()))
	for _, d := range c.Dates() {
		e.date(d)
	}
	e.u32(uint32(c.Samples()))
	e.u32(uint32(c.Depth()))

	for i := 0; i < c.NumIDs() && e.err == nil; i++ {
		for k := 0; k < c.Depth(); k++ {
			v, err := c.GetT0(i, k)
			if err != nil {
				return err
			}
			e.value(v, f32)
		}
	}
	for i := 0; i < c.NumIDs() && e.err == nil; i++ {
		for j := 0; j < c.NumDates(); j++ {
			for s := 0; s < c.Samples(); s++ {
				for k := 0; k < c.Depth(); k++ {
					v, err := c.Get(i, j, s, k)
					if err != nil {
						return err
					}
					e.value(v, f32)
				}
			}
		}
	}
	if e.err != nil {
		return xerrors.Wrap(e.err, xerrors.ErrInternal, "encode cube")
	}
	if err := bw.Flush(); err != nil {
		return xerrors.Wrap(err, xerrors.ErrInternal, "encode cube")
	}
	return zw.Close()
}

// Decode 读取 Encode 写出的数据并按原精度重建内存立方体。
func Decode(r io.Reader) (NPVCube, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, xerrors.DeriveCause(xerrors.ErrCorruptCube, err, "gzip header")
	}
	defer zr.Close()
	d := &decoder{r: bufio.NewReader(zr)}

	if string(d.bytes(len(codecMagic))) != codecMagic {
		return nil, xerrors.Derive(xerrors.ErrCorruptCube, "bad magic")
	}
	if v := d.u16(); v != codecVersion {
		return nil, xerrors.Derive(xerrors.ErrCorruptCube, "unsupported version %d", v)
	}
	width := d.u8()
	if width != 4 && width != 8 {
		return nil, xerrors.Derive(xerrors.ErrCorruptCube, "value width %d", width)
	}
	asOf := d.date()
	nIDs := d.count()
	ids := make([]string, 0, min(nIDs, 1024))
	for i := 0; i < nIDs && d.err == nil; i++ {
		ids = append(ids, d.str())
	}
	nDates := d.count()
	dates := make([]time.Time, 0, min(nDates, 1024))
	for i := 0; i < nDates && d.err == nil; i++ {
		dates = append(dates, d.date())
	}
	samples, depth := d.count(), d.count()
	if d.err != nil {
		return nil, xerrors.DeriveCause(xerrors.ErrCorruptCube, d.err, "header")
	}
	if !cellsWithin(maxCells, len(ids), len(dates), samples, depth) {
		return nil, xerrors.Derive(xerrors.ErrCorruptCube, "%d ids x %d dates x %d samples x %d depth exceeds %d cells",
			len(ids), len(dates), samples, depth, maxCells)
	}

	precision := "float64"
	if width == 4 {
		precision = "float32"
	}
	c, err := NewCube(precision, asOf, ids, dates, samples, depth)
	if err != nil {
		return nil, err
	}
	f32 := width == 4
	for i := range ids {
		for k := 0; k < depth; k++ {
			if err := c.SetT0(d.value(f32), i, k); err != nil {
				return nil, err
			}
		}
	}
	for i := range ids {
		for j := range dates {
			for s := 0; s < samples; s++ {
				for k := 0; k < depth; k++ {
					if err := c.Set(d.value(f32), i, j, s, k); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	if d.err != nil {
		return nil, xerrors.DeriveCause(xerrors.ErrCorruptCube, d.err, "body truncated")
	}
	return c, nil
}

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u8(v uint8) { e.bytes([]byte{v}) }

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.bytes(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.bytes(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.bytes(e.buf[:8])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.bytes([]byte(s))
}

func (e *encoder) date(t time.Time) { e.u64(uint64(t.Unix())) }

func (e *encoder) value(v float64, f32 bool) {
	if f32 {
		e.u32(math.Float32bits(float32(v)))
		return
	}
	e.u64(math.Float64bits(v))
}

type decoder struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	b := make([]byte, n)
	_, d.err = io.ReadFull(d.r, b)
	return b
}

func (d *decoder) fixed(n int) []byte {
	if d.err == nil {
		_, d.err = io.ReadFull(d.r, d.buf[:n])
	}
	if d.err != nil {
		clear(d.buf[:n])
	}
	return d.buf[:n]
}

func (d *decoder) u8() uint8   { return d.fixed(1)[0] }
func (d *decoder) u16() uint16 { return binary.LittleEndian.Uint16(d.fixed(2)) }
func (d *decoder) u32() uint32 { return binary.LittleEndian.Uint32(d.fixed(4)) }
func (d *decoder) u64() uint64 { return binary.LittleEndian.Uint64(d.fixed(8)) }

const (
	maxCount = 1 << 24
	maxCells = 1 << 28
)

// cellsWithin 报告各维度之积是否不超过 limit，不会溢出。
func cellsWithin(limit int, dims ...int) bool {
	n := 1
	for _, d := range dims {
		if d != 0 && n > limit/d {
			return false
		}
		n *= d
	}
	return true
}

func (d *decoder) count() int {
	n := d.u32()
	if n > maxCount {
		if d.err == nil {
			d.err = io.ErrUnexpectedEOF
		}
		return 0
	}
	return int(n)
}

func (d *decoder) str() string {
	n := d.u32()
	if n > 1<<16 {
		if d.err == nil {
			d.err = io.ErrUnexpectedEOF
		}
		return ""
	}
	return string(d.bytes(int(n)))
}

func (d *decoder) date() time.Time { return time.Unix(int64(d.u64()), 0).UTC() }

func (d *decoder) value(f32 bool) float64 {
	if f32 {
		return float64(math.Float32frombits(d.u32()))
	}
	return math.Float64frombits(d.u64())
}
