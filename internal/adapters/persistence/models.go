package persistence

import (
	"time"
)

// FilamentModel represents the filaments table
type FilamentModel struct {
	ID         int     `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string  `gorm:"column:name;not null"`
	SKU        string  `gorm:"column:sku;unique"`
	Brand      string  `gorm:"column:brand"`
	Color      string  `gorm:"column:color;not null"`
	Material   string  `gorm:"column:material;not null"`
	BedTemp    int     `gorm:"column:bed_temp;not null"`
	NozzleTemp int     `gorm:"column:nozzle_temp;not null"`
	PricePerKg float64 `gorm:"column:price_per_kg"`
	Density    float64 `gorm:"column:density"`
	StockGrams float64 `gorm:"column:stock_grams;not null;default:0"`
}

func (FilamentModel) TableName() string {
	return "filaments"
}

// PrinterProfileModel represents the printer_profiles table
type PrinterProfileModel struct {
	ID             int     `gorm:"column:id;primaryKey;autoIncrement"`
	Name           string  `gorm:"column:name;not null"`
	PrinterModel   string  `gorm:"column:printer_model;not null"`
	NozzleDiameter float64 `gorm:"column:nozzle_diameter;not null"`
	BedX           float64 `gorm:"column:bed_x;not null"`
	BedY           float64 `gorm:"column:bed_y;not null"`
	BedZ           float64 `gorm:"column:bed_z;not null"`
	BaseQuality    float64 `gorm:"column:base_quality"`
	Config         string  `gorm:"column:config;type:text"` // slicer key/values JSON as text
}

func (PrinterProfileModel) TableName() string {
	return "printer_profiles"
}

// MaterialProfileModel represents the material_profiles table
type MaterialProfileModel struct {
	ID       int    `gorm:"column:id;primaryKey;autoIncrement"`
	Name     string `gorm:"column:name;not null"`
	Material string `gorm:"column:material;unique;not null"`
	Config   string `gorm:"column:config;type:text"` // slicer key/values JSON as text
}

func (MaterialProfileModel) TableName() string {
	return "material_profiles"
}

// PrinterModel represents the printers table
type PrinterModel struct {
	ID         int                  `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string               `gorm:"column:name;unique;not null"`
	ProfileID  int                  `gorm:"column:profile_id;not null"`
	Profile    *PrinterProfileModel `gorm:"foreignKey:ProfileID;references:ID"`
	Endpoint   string               `gorm:"column:endpoint;not null"`
	APIKey     string               `gorm:"column:api_key;not null"`
	FilamentID *int                 `gorm:"column:filament_id"`
	Filament   *FilamentModel       `gorm:"foreignKey:FilamentID;references:ID;constraint:OnDelete:SET NULL;"`
	Disabled   bool                 `gorm:"column:disabled;not null;default:false"`
}

func (PrinterModel) TableName() string {
	return "printers"
}

// OrderModel represents the orders table
type OrderModel struct {
	ID       int       `gorm:"column:id;primaryKey;autoIncrement"`
	Client   string    `gorm:"column:client;not null"`
	Number   string    `gorm:"column:number;unique;not null"`
	DueDate  time.Time `gorm:"column:due_date;not null"`
	Priority int       `gorm:"column:priority;not null;default:0"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// GeometryModel represents the geometries table
type GeometryModel struct {
	ID       int     `gorm:"column:id;primaryKey;autoIncrement"`
	Name     string  `gorm:"column:name;not null"`
	FilePath string  `gorm:"column:file_path;not null"`
	SizeX    float64 `gorm:"column:size_x;not null"`
	SizeY    float64 `gorm:"column:size_y;not null"`
	SizeZ    float64 `gorm:"column:size_z;not null"`
}

func (GeometryModel) TableName() string {
	return "geometries"
}

// PieceModel represents the pieces table. Exactly one of GeometryID or
// ProgramPath is set, mirroring the domain invariant.
type PieceModel struct {
	ID              int                  `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID         int                  `gorm:"column:order_id;not null;index"`
	Order           *OrderModel          `gorm:"foreignKey:OrderID;references:ID;constraint:OnDelete:CASCADE;"`
	Copies          int                  `gorm:"column:copies;not null;default:1"`
	Scale           float64              `gorm:"column:scale;not null;default:1"`
	Colors          string               `gorm:"column:colors;type:text"`    // JSON array as text
	Materials       string               `gorm:"column:materials;type:text"` // JSON array as text
	GeometryID      *int                 `gorm:"column:geometry_id"`
	Geometry        *GeometryModel       `gorm:"foreignKey:GeometryID;references:ID"`
	ProgramPath     string               `gorm:"column:program_path"`
	PrintSettingsID *int                 `gorm:"column:print_settings_id"`
	PrintSettings   *PrinterProfileModel `gorm:"foreignKey:PrintSettingsID;references:ID"`
	Cancelled       bool                 `gorm:"column:cancelled;not null;default:false"`
	BuildTimeS      *int64               `gorm:"column:build_time_s"` // quoted build time, nil until the quote lands
	WeightG         *float64             `gorm:"column:weight_g"`
}

func (PieceModel) TableName() string {
	return "pieces"
}

// DeviceTaskModel represents the device_tasks table
type DeviceTaskModel struct {
	ID           string           `gorm:"column:id;primaryKey;not null"` // uuid
	PrinterID    int              `gorm:"column:printer_id;not null;index"`
	Printer      *PrinterModel    `gorm:"foreignKey:PrinterID;references:ID"`
	Kind         string           `gorm:"column:kind;not null"`
	State        string           `gorm:"column:state;not null"`
	DependencyID *string          `gorm:"column:dependency_id"`
	Dependency   *DeviceTaskModel `gorm:"foreignKey:DependencyID;references:ID"`
	ProgramPath  string           `gorm:"column:program_path"`
	Commands     string           `gorm:"column:commands;type:text"` // JSON array as text
	Failure      string           `gorm:"column:failure"`
	CreatedAt    time.Time        `gorm:"column:created_at;not null"`
}

func (DeviceTaskModel) TableName() string {
	return "device_tasks"
}

// FilamentChangeModel represents the filament_changes table
type FilamentChangeModel struct {
	ID            string           `gorm:"column:id;primaryKey;not null"` // uuid
	TaskID        string           `gorm:"column:task_id;not null"`
	Task          *DeviceTaskModel `gorm:"foreignKey:TaskID;references:ID;constraint:OnDelete:CASCADE;"`
	NewFilamentID int              `gorm:"column:new_filament_id;not null"`
	NewFilament   *FilamentModel   `gorm:"foreignKey:NewFilamentID;references:ID"`
	Confirmed     bool             `gorm:"column:confirmed;not null;default:false"`
	ConfirmedAt   *time.Time       `gorm:"column:confirmed_at"`
}

func (FilamentChangeModel) TableName() string {
	return "filament_changes"
}

// PrintJobModel represents the print_jobs table. One row per physical print
// attempt of one piece copy.
type PrintJobModel struct {
	ID           string           `gorm:"column:id;primaryKey;not null"` // uuid
	PieceID      int              `gorm:"column:piece_id;not null;index"`
	Piece        *PieceModel      `gorm:"foreignKey:PieceID;references:ID;constraint:OnDelete:CASCADE;"`
	TaskID       string           `gorm:"column:task_id;not null"`
	Task         *DeviceTaskModel `gorm:"foreignKey:TaskID;references:ID"`
	FilamentID   *int             `gorm:"column:filament_id"`
	Filament     *FilamentModel   `gorm:"foreignKey:FilamentID;references:ID"`
	WeightG      float64          `gorm:"column:weight_g;not null;default:0"`
	Success      *bool            `gorm:"column:success"` // nil until the operator confirms
	CreatedAt    time.Time        `gorm:"column:created_at;not null"`
	EstimatedEnd *time.Time       `gorm:"column:estimated_end"`
	EndedAt      *time.Time       `gorm:"column:ended_at"`
}

func (PrintJobModel) TableName() string {
	return "print_jobs"
}

// ScheduleModel represents the schedules table
type ScheduleModel struct {
	ID         string     `gorm:"column:id;primaryKey;not null"` // uuid
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	Status     string     `gorm:"column:status;not null"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

func (ScheduleModel) TableName() string {
	return "schedules"
}

// ScheduleEntryModel represents the schedule_entries table
type ScheduleEntryModel struct {
	ID           int            `gorm:"column:id;primaryKey;autoIncrement"`
	ScheduleID   string         `gorm:"column:schedule_id;not null;index"`
	Schedule     *ScheduleModel `gorm:"foreignKey:ScheduleID;references:ID;constraint:OnDelete:CASCADE;"`
	PrinterID    int            `gorm:"column:printer_id;not null"`
	PieceID      int            `gorm:"column:piece_id;not null;default:0"`
	DeviceTaskID string         `gorm:"column:device_task_id"`
	Start        time.Time      `gorm:"column:start;not null"`
	End          time.Time      `gorm:"column:end;not null"`
	Deadline     time.Time      `gorm:"column:deadline;not null"`
}

func (ScheduleEntryModel) TableName() string {
	return "schedule_entries"
}
