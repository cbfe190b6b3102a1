package scenario

// Direction 敏感度情景的冲击方向。
type Direction int

const (
	Base Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "Base"
	}
}

// Description 描述一个敏感度情景：方向、被冲击的键、下标说明（如 "5Y"）与冲击量。
type Description struct {
	Direction Direction
	Key       RiskFactorKey
	IndexDesc string
	Shift     float64
}

// String 形如 "Up:DiscountCurve/EUR/3"，基准情景为 "Base"。
func (d Description) String() string {
	if d.Direction == Base {
		return "Base"
	}
	return d.Direction.String() + ":" + d.Key.String()
}

// FactorDesc 键与下标说明，写入敏感度记录。
func (d Description) FactorDesc() string {
	if d.IndexDesc == "" {
		return d.Key.String()
	}
	return d.Key.String() + "/" + d.IndexDesc
}
