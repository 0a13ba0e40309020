package pgstore

import "time"

// Set is catalog set metadata.
type Set struct {
	SetNum   string `gorm:"primaryKey;size:64"`
	Name     string
	Year     int
	NumParts int
}

func (Set) TableName() string { return "sets" }

// Part carries display hints for a part number.
type Part struct {
	PartNum string `gorm:"primaryKey;size:64"`
	Name    string
	ImgURL  string `gorm:"column:img_url"`
}

func (Part) TableName() string { return "parts" }

// Inventory is one catalog inventory version of a set.
type Inventory struct {
	ID      uint            `gorm:"primaryKey"`
	SetNum  string          `gorm:"not null;size:64;uniqueIndex:idx_inventories_set_version"`
	Version int             `gorm:"not null;default:1;uniqueIndex:idx_inventories_set_version"`
	Parts   []InventoryPart `gorm:"foreignKey:InventoryID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Inventory) TableName() string { return "inventories" }

type InventoryPart struct {
	ID          uint   `gorm:"primaryKey"`
	InventoryID uint   `gorm:"not null;index"`
	PartNum     string `gorm:"not null;size:64;index:idx_inventory_parts_pair"`
	ColorID     int    `gorm:"not null;index:idx_inventory_parts_pair"`
	Quantity    int    `gorm:"not null"`
	IsSpare     bool   `gorm:"not null;default:false"`
}

func (InventoryPart) TableName() string { return "inventory_parts" }

type InstructionPart struct {
	ID       uint   `gorm:"primaryKey"`
	SetNum   string `gorm:"not null;size:64;index"`
	PartNum  string `gorm:"not null;size:64"`
	ColorID  int    `gorm:"not null"`
	Quantity int    `gorm:"not null"`
	IsSpare  bool   `gorm:"not null;default:false"`
}

func (InstructionPart) TableName() string { return "instruction_parts" }

type SummaryPart struct {
	ID       uint   `gorm:"primaryKey"`
	SetNum   string `gorm:"not null;size:64;index"`
	PartNum  string `gorm:"not null;size:64;index:idx_summary_pair"`
	ColorID  int    `gorm:"not null;index:idx_summary_pair"`
	Quantity int    `gorm:"not null"`
}

func (SummaryPart) TableName() string { return "set_parts_summary" }

type ExcludedPart struct {
	PartNum string `gorm:"primaryKey;size:64"`
	Reason  string
}

func (ExcludedPart) TableName() string { return "excluded_parts" }

// UserPart is one manual inventory row.
type UserPart struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"not null;size:128;uniqueIndex:idx_user_parts_key"`
	PartNum   string `gorm:"not null;size:64;uniqueIndex:idx_user_parts_key"`
	ColorID   int    `gorm:"not null;uniqueIndex:idx_user_parts_key"`
	Quantity  int    `gorm:"not null"`
	UpdatedAt time.Time
}

func (UserPart) TableName() string { return "user_parts" }

// UserSet is one owned copy of a set.
type UserSet struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"not null;size:128;index"`
	SetNum    string `gorm:"not null;size:64"`
	CreatedAt time.Time
}

func (UserSet) TableName() string { return "user_sets" }

// binRow is the shape of the aggregated inventory and ledger tables.
type binRow struct {
	UserID   string `gorm:"primaryKey;size:128"`
	PartNum  string `gorm:"primaryKey;size:64"`
	ColorID  int    `gorm:"primaryKey;autoIncrement:false"`
	Quantity int    `gorm:"not null;check:quantity > 0"`
}

type UserInventory binRow

func (UserInventory) TableName() string { return "user_inventory" }

type UserReservation binRow

func (UserReservation) TableName() string { return "user_reservations" }

type BuildPlan struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"not null;size:128;index:idx_build_plans_user"`
	SetNum    string    `gorm:"not null;size:64"`
	BOMJSON   string    `gorm:"column:bom_json;type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_build_plans_user"`
}

func (BuildPlan) TableName() string { return "build_plans" }

type DiscoverCandidate struct {
	UserID     string `gorm:"primaryKey;size:128"`
	SetNum     string `gorm:"primaryKey;size:64"`
	MatchPairs int    `gorm:"not null"`
}

func (DiscoverCandidate) TableName() string { return "discover_candidates" }

type UserInvVersion struct {
	UserID       string `gorm:"primaryKey;size:128"`
	Version      int64  `gorm:"not null;default:0"`
	InventoryRev int64  `gorm:"not null;default:0"`
	IndexedRev   int64  `gorm:"not null;default:0"`
}

func (UserInvVersion) TableName() string { return "user_inv_version" }

func allModels() []interface{} {
	return []interface{}{
		&Set{}, &Part{}, &Inventory{}, &InventoryPart{}, &InstructionPart{}, &SummaryPart{},
		&ExcludedPart{}, &UserPart{}, &UserSet{}, &UserInventory{}, &UserReservation{},
		&BuildPlan{}, &DiscoverCandidate{}, &UserInvVersion{},
	}
}
