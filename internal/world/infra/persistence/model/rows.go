package model

// 关系型后端（mysql / sqlite / postgres）共用的行结构。
// 时间统一存 UTC 毫秒，队列、驻军等嵌套结构存 JSON 文本。

type Village struct {
	WorldID      int64  `gorm:"column:world_id;primaryKey;autoIncrement:false;uniqueIndex:uk_village_coord,priority:1;" json:"world_id"`
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement:false;" json:"id"`
	OwnerID      int64  `gorm:"column:owner_id;not null;default:0;index:idx_village_owner;comment:0 为野蛮村;" json:"owner_id"`
	Name         string `gorm:"column:name;type:varchar(100);not null;default:'';" json:"name"`
	X            int    `gorm:"column:x;not null;uniqueIndex:uk_village_coord,priority:2;" json:"x"`
	Y            int    `gorm:"column:y;not null;uniqueIndex:uk_village_coord,priority:3;" json:"y"`
	Terrain      string `gorm:"column:terrain;type:varchar(32);not null;" json:"terrain"`
	Buildings    string `gorm:"column:buildings;type:text;not null;" json:"buildings"`
	Resources    string `gorm:"column:resources;type:text;not null;" json:"resources"`
	Remainder    string `gorm:"column:remainder;type:text;not null;" json:"remainder"`
	LastAccrual  int64  `gorm:"column:last_accrual;not null;comment:毫秒;" json:"last_accrual"`
	Garrison     string `gorm:"column:garrison;type:text;not null;" json:"garrison"`
	Support      string `gorm:"column:support;type:text;not null;comment:驻扎支援;" json:"support"`
	Construction string `gorm:"column:construction;type:text;not null;" json:"construction"`
	Training     string `gorm:"column:training;type:text;not null;" json:"training"`
	Version      int64  `gorm:"column:version;not null;comment:乐观锁版本号;" json:"version"`
}

func (*Village) TableName() string {
	return "village"
}

type Event struct {
	WorldID   int64  `gorm:"column:world_id;primaryKey;autoIncrement:false;" json:"world_id"`
	Due       int64  `gorm:"column:due;primaryKey;autoIncrement:false;comment:毫秒;" json:"due"`
	Seq       int64  `gorm:"column:seq;primaryKey;autoIncrement:false;" json:"seq"`
	Kind      string `gorm:"column:kind;type:varchar(32);not null;" json:"kind"`
	VillageID int64  `gorm:"column:village_id;not null;default:0;" json:"village_id"`
	ItemID    int64  `gorm:"column:item_id;not null;default:0;" json:"item_id"`
	ArmyID    int64  `gorm:"column:army_id;not null;default:0;" json:"army_id"`
}

func (*Event) TableName() string {
	return "scheduled_event"
}

type Army struct {
	WorldID     int64  `gorm:"column:world_id;primaryKey;autoIncrement:false;" json:"world_id"`
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement:false;" json:"id"`
	OwnerID     int64  `gorm:"column:owner_id;not null;" json:"owner_id"`
	Origin      int64  `gorm:"column:origin;not null;" json:"origin"`
	Destination int64  `gorm:"column:destination;not null;index:idx_army_destination;" json:"destination"`
	Units       string `gorm:"column:units;type:text;not null;" json:"units"`
	Loot        string `gorm:"column:loot;type:text;not null;" json:"loot"`
	Intent      string `gorm:"column:intent;type:varchar(16);not null;" json:"intent"`
	DepartAt    int64  `gorm:"column:depart_at;not null;" json:"depart_at"`
	ArriveAt    int64  `gorm:"column:arrive_at;not null;" json:"arrive_at"`
}

func (*Army) TableName() string {
	return "army"
}

// Report 战报只追加。Body 是完整战报 JSON，另外两列用于按村庄查询。
type Report struct {
	ID              string `gorm:"column:id;type:char(26);primaryKey;" json:"id"`
	WorldID         int64  `gorm:"column:world_id;not null;index:idx_report_world_time,priority:1;" json:"world_id"`
	AttackerVillage int64  `gorm:"column:attacker_village;not null;index:idx_report_attacker;" json:"attacker_village"`
	DefenderVillage int64  `gorm:"column:defender_village;not null;index:idx_report_defender;" json:"defender_village"`
	OccurredAt      int64  `gorm:"column:occurred_at;not null;index:idx_report_world_time,priority:2;" json:"occurred_at"`
	Body            string `gorm:"column:body;type:text;not null;" json:"body"`
}

func (*Report) TableName() string {
	return "battle_report"
}
