package entity

import (
	"TribalRealms/internal/shared/gameconfig"
)

type Resource string

const (
	Wood Resource = "wood"
	Clay Resource = "clay"
	Iron Resource = "iron"
)

var AllResources = []Resource{Wood, Clay, Iron}

type Resources struct {
	Wood int64 `json:"wood"`
	Clay int64 `json:"clay"`
	Iron int64 `json:"iron"`
}

func FromCost(c gameconfig.Cost) Resources {
	return Resources{Wood: c.Wood, Clay: c.Clay, Iron: c.Iron}
}

func (r Resources) Get(res Resource) int64 {
	switch res {
	case Wood:
		return r.Wood
	case Clay:
		return r.Clay
	case Iron:
		return r.Iron
	}
	return 0
}

func (r *Resources) Set(res Resource, v int64) {
	switch res {
	case Wood:
		r.Wood = v
	case Clay:
		r.Clay = v
	case Iron:
		r.Iron = v
	}
}

// Covers 判断余额是否足够支付 cost。
func (r Resources) Covers(cost Resources) bool {
	return r.Wood >= cost.Wood && r.Clay >= cost.Clay && r.Iron >= cost.Iron
}

func (r Resources) Add(o Resources) Resources {
	return Resources{Wood: r.Wood + o.Wood, Clay: r.Clay + o.Clay, Iron: r.Iron + o.Iron}
}

func (r Resources) Sub(o Resources) Resources {
	return Resources{Wood: r.Wood - o.Wood, Clay: r.Clay - o.Clay, Iron: r.Iron - o.Iron}
}

func (r Resources) Scale(n int64) Resources {
	return Resources{Wood: r.Wood * n, Clay: r.Clay * n, Iron: r.Iron * n}
}

// ClampTo 每种资源都不超过 limit。
func (r Resources) ClampTo(limit int64) Resources {
	return Resources{Wood: min(r.Wood, limit), Clay: min(r.Clay, limit), Iron: min(r.Iron, limit)}
}

func (r Resources) Total() int64 {
	return r.Wood + r.Clay + r.Iron
}

func (r Resources) IsZero() bool {
	return r.Wood == 0 && r.Clay == 0 && r.Iron == 0
}

// Units 兵种 → 数量。零值条目会在 Sub 时清理掉。
type Units map[gameconfig.UnitType]int64

func (u Units) Clone() Units {
	if u == nil {
		return Units{}
	}
	out := make(Units, len(u))
	for k, v := range u {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

// Covers 判断 u 是否包含 need 的每一项。
func (u Units) Covers(need Units) bool {
	for k, v := range need {
		if v < 0 || u[k] < v {
			return false
		}
	}
	return true
}

func (u Units) Add(o Units) Units {
	out := u.Clone()
	for k, v := range o {
		if v > 0 {
			out[k] += v
		}
	}
	return out
}

// Sub 调用方需先用 Covers 校验，这里不允许出现负数。
func (u Units) Sub(o Units) Units {
	out := u.Clone()
	for k, v := range o {
		left := out[k] - v
		if left <= 0 {
			delete(out, k)
			continue
		}
		out[k] = left
	}
	return out
}

func (u Units) Total() int64 {
	var n int64
	for _, v := range u {
		n += v
	}
	return n
}

func (u Units) IsEmpty() bool {
	return u.Total() == 0
}

// Positive 过滤掉非正数条目，常用于请求参数清洗。
func (u Units) Positive() Units {
	out := Units{}
	for k, v := range u {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}
