package math

import "math"

const closeEnoughTol = 42 * 2.220446049250313e-16

// CloseEnough 相对容差比较，两边均接近零时按绝对差判断。
func CloseEnough(x, y float64) bool {
	if x == y {
		return true
	}
	diff := math.Abs(x - y)
	tol := closeEnoughTol
	if x == 0 || y == 0 {
		return diff < tol*tol
	}
	return diff <= tol*math.Abs(x) || diff <= tol*math.Abs(y)
}

// CloseTo 以给定绝对容差比较。
func CloseTo(x, y, tol float64) bool {
	return math.Abs(x-y) <= tol
}
