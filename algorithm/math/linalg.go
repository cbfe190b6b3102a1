// Package math 提供引擎内部使用的稠密矩阵与数值比较工具。
package math

import (
	"math"

	"github.com/wyfcoding/riskengine/xerrors"
)

// Matrix 行主序稠密矩阵。
type Matrix struct {
	Data []float64
	Rows int
	Cols int
}

// NewMatrix 创建 rows x cols 零矩阵。
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// Identity 创建 n 阶单位阵。
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := range n {
		m.Set(i, i, 1)
	}
	return m
}

// NewMatrixFromData 从二维切片创建矩阵。
func NewMatrixFromData(data [][]float64) (*Matrix, error) {
	rows := len(data)
	if rows == 0 {
		return nil, xerrors.ErrEmptyData
	}

	cols := len(data[0])
	m := NewMatrix(rows, cols)
	for i := range rows {
		if len(data[i]) != cols {
			return nil, xerrors.Derive(xerrors.ErrDimMismatch, "row %d has %d columns, expected %d", i, len(data[i]), cols)
		}
		copy(m.Data[i*cols:(i+1)*cols], data[i])
	}
	return m, nil
}

// Get 获取元素 (i, j)。
func (m *Matrix) Get(row, col int) float64 {
	return m.Data[row*m.Cols+col]
}

// Set 设置元素 (i, j)。
func (m *Matrix) Set(row, col int, val float64) {
	m.Data[row*m.Cols+col] = val
}

// MultiplyVector y = A * x。
func (m *Matrix) MultiplyVector(vec []float64) ([]float64, error) {
	if len(vec) != m.Cols {
		return nil, xerrors.ErrDimMismatch
	}

	res := make([]float64, m.Rows)
	for i := range m.Rows {
		var sum float64
		off := i * m.Cols
		for j := range m.Cols {
			sum += m.Data[off+j] * vec[j]
		}
		res[i] = sum
	}
	return res, nil
}

// QuadraticForm 计算 x^T A x，SIMM 桶内与桶间聚合都基于此。
func (m *Matrix) QuadraticForm(x []float64) (float64, error) {
	if m.Rows != m.Cols || len(x) != m.Rows {
		return 0, xerrors.ErrDimMismatch
	}
	ax, err := m.MultiplyVector(x)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range x {
		sum += x[i] * ax[i]
	}
	return sum, nil
}

// IsSymmetric 以给定容差判断对称。
func (m *Matrix) IsSymmetric(tol float64) bool {
	if m.Rows != m.Cols {
		return false
	}
	for i := range m.Rows {
		for j := range i {
			if math.Abs(m.Get(i, j)-m.Get(j, i)) > tol {
				return false
			}
		}
	}
	return true
}

// Cholesky 分解 A = L * L^T，返回下三角 L。
func (m *Matrix) Cholesky() (*Matrix, error) {
	if m.Rows != m.Cols {
		return nil, xerrors.ErrNotSquare
	}

	n := m.Rows
	l := NewMatrix(n, n)
	for i := range n {
		for j := range i + 1 {
			var sum float64
			for k := range j {
				sum += l.Get(i, k) * l.Get(j, k)
			}
			if i == j {
				v := m.Get(i, i) - sum
				if v <= 0 {
					return nil, xerrors.Derive(xerrors.ErrNotPositiveDefinite, "pivot %d is %g", i, v)
				}
				l.Set(i, i, math.Sqrt(v))
			} else {
				l.Set(i, j, (m.Get(i, j)-sum)/l.Get(j, j))
			}
		}
	}
	return l, nil
}

// CorrelationMatrix 校验相关系数矩阵：对称、对角为 1、元素在 [-1,1] 内，并返回其 Cholesky 因子。
func CorrelationMatrix(rho [][]float64) (*Matrix, *Matrix, error) {
	m, err := NewMatrixFromData(rho)
	if err != nil {
		return nil, nil, err
	}
	if m.Rows != m.Cols {
		return nil, nil, xerrors.ErrNotSquare
	}
	if !m.IsSymmetric(1e-12) {
		return nil, nil, xerrors.Derive(xerrors.ErrDimMismatch, "correlation matrix is not symmetric")
	}
	for i := range m.Rows {
		if !CloseEnough(m.Get(i, i), 1) {
			return nil, nil, xerrors.Derive(xerrors.ErrNotPositiveDefinite, "diagonal %d is %g", i, m.Get(i, i))
		}
		for j := range m.Cols {
			if math.Abs(m.Get(i, j)) > 1 {
				return nil, nil, xerrors.Derive(xerrors.ErrNotPositiveDefinite, "entry (%d,%d) is %g", i, j, m.Get(i, j))
			}
		}
	}
	l, err := m.Cholesky()
	if err != nil {
		return nil, nil, err
	}
	return m, l, nil
}
