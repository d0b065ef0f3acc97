package command

import (
	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/world/entity"
)

// Kind 是指令负载的标签，对外协议里的 "kind" 字段。
type Kind string

const (
	KindBuild    Kind = "build"
	KindTrain    Kind = "train"
	KindDispatch Kind = "dispatch"
	KindRecall   Kind = "recall"
)

// Payload 是玩家指令的负载，按 Kind 分发到对应处理函数。
type Payload interface {
	Kind() Kind
}

type BuildPayload struct {
	Building gameconfig.BuildingType `json:"building" mapstructure:"building"`
}

type TrainPayload struct {
	Unit  gameconfig.UnitType `json:"unit" mapstructure:"unit"`
	Count int64               `json:"count" mapstructure:"count"`
}

type DispatchPayload struct {
	Destination entity.VillageID `json:"destination" mapstructure:"destination"`
	Units       entity.Units     `json:"units" mapstructure:"units"`
	Intent      entity.Intent    `json:"intent" mapstructure:"intent"`
}

// RecallPayload 召回本村驻扎在 Host 的支援，Units 为空时全部召回。
type RecallPayload struct {
	Host  entity.VillageID `json:"host" mapstructure:"host"`
	Units entity.Units     `json:"units,omitempty" mapstructure:"units"`
}

func (BuildPayload) Kind() Kind    { return KindBuild }
func (TrainPayload) Kind() Kind    { return KindTrain }
func (DispatchPayload) Kind() Kind { return KindDispatch }
func (RecallPayload) Kind() Kind   { return KindRecall }
