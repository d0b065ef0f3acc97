package entity

// Support 是驻扎在别人村庄里的支援部队。部队始终归派出方所有，
// 参与驻地防守但不占驻地人口，召回时以返程部队回到 Origin。
type Support struct {
	Origin  VillageID `json:"origin"`
	OwnerID PlayerID  `json:"owner_id"`
	Units   Units     `json:"units"`
}

// Station 把到达的支援并入驻扎列表，同一 (origin, owner) 合并为一条。
func (v *Village) Station(origin VillageID, owner PlayerID, units Units) {
	units = units.Positive()
	if units.IsEmpty() {
		return
	}
	for i := range v.Support {
		if s := &v.Support[i]; s.Origin == origin && s.OwnerID == owner {
			s.Units = s.Units.Add(units)
			return
		}
	}
	v.Support = append(v.Support, Support{Origin: origin, OwnerID: owner, Units: units})
}

// StationedFrom 返回 origin 派来、属于 owner 的驻扎部队。
func (v *Village) StationedFrom(origin VillageID, owner PlayerID) Units {
	for _, s := range v.Support {
		if s.Origin == origin && s.OwnerID == owner {
			return s.Units.Clone()
		}
	}
	return Units{}
}

// Withdraw 从驻扎部队里撤出 units，units 为空表示全部撤出。
// 驻扎数量不足时返回 false，村庄不变。
func (v *Village) Withdraw(origin VillageID, owner PlayerID, units Units) (Units, bool) {
	for i := range v.Support {
		s := &v.Support[i]
		if s.Origin != origin || s.OwnerID != owner {
			continue
		}
		take := units.Positive()
		if take.IsEmpty() {
			take = s.Units.Positive()
		}
		if take.IsEmpty() || !s.Units.Covers(take) {
			return nil, false
		}
		s.Units = s.Units.Sub(take)
		if s.Units.IsEmpty() {
			v.Support = append(v.Support[:i], v.Support[i+1:]...)
		}
		return take, true
	}
	return nil, false
}

// Defenders 驻军加全部支援，即参与防守的兵力。
func (v *Village) Defenders() Units {
	out := v.Garrison.Clone()
	for _, s := range v.Support {
		out = out.Add(s.Units)
	}
	return out
}

// Supporters 驻扎部队的主人，按驻扎顺序去重。
func (v *Village) Supporters() []PlayerID {
	var out []PlayerID
	for _, s := range v.Support {
		seen := false
		for _, p := range out {
			seen = seen || p == s.OwnerID
		}
		if !seen {
			out = append(out, s.OwnerID)
		}
	}
	return out
}
