package gameconfig

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type BuildingType string

const (
	Headquarters BuildingType = "headquarters"
	Woodcutter   BuildingType = "woodcutter"
	ClayPit      BuildingType = "clay_pit"
	IronMine     BuildingType = "iron_mine"
	Farm         BuildingType = "farm"
	Storage      BuildingType = "storage"
	Barracks     BuildingType = "barracks"
	Wall         BuildingType = "wall"
)

// AllBuildings 固定遍历顺序（map 遍历无序，落库/展示都按这个顺序）。
var AllBuildings = []BuildingType{Headquarters, Woodcutter, ClayPit, IronMine, Farm, Storage, Barracks, Wall}

type UnitType string

const (
	Swordsman  UnitType = "swordsman"
	Archer     UnitType = "archer"
	Knight     UnitType = "knight"
	Skirmisher UnitType = "skirmisher"
	Nobleman   UnitType = "nobleman"
)

var AllUnits = []UnitType{Swordsman, Archer, Knight, Skirmisher, Nobleman}

// UnitClass 决定兵种进入近战还是远程交战。
type UnitClass string

const (
	ClassMelee  UnitClass = "melee"
	ClassRanged UnitClass = "ranged"
)

type Terrain string

const (
	Plains   Terrain = "plains"
	Forest   Terrain = "forest"
	Hills    Terrain = "hills"
	Mountain Terrain = "mountain"
)

type Cost struct {
	Wood int64 `yaml:"wood" json:"wood"`
	Clay int64 `yaml:"clay" json:"clay"`
	Iron int64 `yaml:"iron" json:"iron"`
}

type Building struct {
	MaxLevel       int           `yaml:"max_level"`
	BaseCost       Cost          `yaml:"base_cost"`
	BaseBuildTime  time.Duration `yaml:"base_build_time"`
	BasePopulation int64         `yaml:"base_population"`
	Produces       string        `yaml:"produces"` // wood/clay/iron，为空表示不产出
}

type Unit struct {
	Class         UnitClass     `yaml:"class"`
	Attack        int64         `yaml:"attack"`
	DefenseMelee  int64         `yaml:"defense_melee"`
	DefenseRanged int64         `yaml:"defense_ranged"`
	Speed         time.Duration `yaml:"speed"` // 每格耗时
	Carry         int64         `yaml:"carry"`
	Population    int64         `yaml:"population"`
	Cost          Cost          `yaml:"cost"`
	TrainTime     time.Duration `yaml:"train_time"`
	Conquers      bool          `yaml:"conquers"`
}

type Formulas struct {
	CostGrowth                float64 `yaml:"cost_growth"`
	BuildTimeGrowth           float64 `yaml:"build_time_growth"`
	PopulationGrowth          float64 `yaml:"population_growth"`
	ProductionBase            float64 `yaml:"production_base"`
	ProductionGrowth          float64 `yaml:"production_growth"`
	StorageBase               float64 `yaml:"storage_base"`
	StorageGrowth             float64 `yaml:"storage_growth"`
	FarmBase                  float64 `yaml:"farm_base"`
	FarmGrowth                float64 `yaml:"farm_growth"`
	HQReductionPerLevel       float64 `yaml:"hq_reduction_per_level"`
	BarracksReductionPerLevel float64 `yaml:"barracks_reduction_per_level"`
	MaxTimeReduction          float64 `yaml:"max_time_reduction"`
	ConstructionQueue         int     `yaml:"construction_queue"`
	TrainingQueueBase         int64   `yaml:"training_queue_base"`
	TrainingQueuePerLevel     int64   `yaml:"training_queue_per_level"`
	WallBonusPerLevel         float64 `yaml:"wall_bonus_per_level"`
}

// Tables 是一个世界的静态数值表，开服后只读。
type Tables struct {
	Speed     float64                   `yaml:"-"`
	Formulas  Formulas                  `yaml:"formulas"`
	Buildings map[BuildingType]Building `yaml:"buildings"`
	Units     map[UnitType]Unit         `yaml:"units"`
	Terrain   map[Terrain]float64       `yaml:"terrain"`
}

//go:embed tables.yaml
var defaultTables []byte

// Default 返回内置数值表。
func Default(speed float64) (*Tables, error) {
	return Parse(defaultTables, speed)
}

// MustDefault 给测试和 CLI 用。
func MustDefault(speed float64) *Tables {
	t, err := Default(speed)
	if err != nil {
		panic(err)
	}
	return t
}

// Load 从文件加载数值表；path 为空时使用内置表。
func Load(path string, speed float64) (*Tables, error) {
	if path == "" {
		return Default(speed)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables %s: %w", path, err)
	}
	return Parse(raw, speed)
}

func Parse(raw []byte, speed float64) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}
	if speed <= 0 {
		speed = 1
	}
	t.Speed = speed
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tables) validate() error {
	for _, b := range AllBuildings {
		def, ok := t.Buildings[b]
		if !ok {
			return fmt.Errorf("tables: building %q missing", b)
		}
		if def.MaxLevel <= 0 {
			return fmt.Errorf("tables: building %q max_level must be positive", b)
		}
	}
	for _, u := range AllUnits {
		def, ok := t.Units[u]
		if !ok {
			return fmt.Errorf("tables: unit %q missing", u)
		}
		if def.Speed <= 0 {
			return fmt.Errorf("tables: unit %q speed must be positive", u)
		}
		if def.Class != ClassMelee && def.Class != ClassRanged {
			return fmt.Errorf("tables: unit %q class %q invalid", u, def.Class)
		}
	}
	if t.Formulas.ConstructionQueue <= 0 {
		return fmt.Errorf("tables: construction_queue must be positive")
	}
	return nil
}

func (t *Tables) Building(b BuildingType) (Building, bool) {
	def, ok := t.Buildings[b]
	return def, ok
}

func (t *Tables) Unit(u UnitType) (Unit, bool) {
	def, ok := t.Units[u]
	return def, ok
}
