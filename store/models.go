package store

import (
	"fmt"
	"path"
	"strconv"
	"time"
)

// Event directory layouts.
const (
	SchemeDeep    = "Deep"
	SchemeMedium  = "Medium"
	SchemeShallow = "Shallow"
)

type Event struct {
	ID            uint64    `gorm:"column:Id;primaryKey"`
	MonitorID     uint64    `gorm:"column:MonitorId"`
	StorageID     uint64    `gorm:"column:StorageId"`
	StartDateTime time.Time `gorm:"column:StartDateTime"`
	DefaultVideo  string    `gorm:"column:DefaultVideo"`
	Scheme        string    `gorm:"column:Scheme"`
}

func (Event) TableName() string {
	return "Events"
}

// RelativePath is the event directory below its storage area.
func (e *Event) RelativePath() string {
	monitor := strconv.FormatUint(e.MonitorID, 10)

	switch e.Scheme {
	case SchemeDeep:
		return path.Join(monitor, e.StartDateTime.Format("06/01/02/15/04/05"))
	case SchemeMedium:
		return path.Join(monitor, e.StartDateTime.Format("2006-01-02"), strconv.FormatUint(e.ID, 10))
	default:
		return path.Join(monitor, strconv.FormatUint(e.ID, 10))
	}
}

type Frame struct {
	ID      uint64 `gorm:"column:Id;primaryKey"`
	EventID uint64 `gorm:"column:EventId"`
	FrameID uint64 `gorm:"column:FrameId"`
}

func (Frame) TableName() string {
	return "Frames"
}

// StorageArea is a root directory events are written under.
type StorageArea struct {
	ID   uint64 `gorm:"column:Id;primaryKey"`
	Name string `gorm:"column:Name"`
	Path string `gorm:"column:Path"`
}

func (StorageArea) TableName() string {
	return "Storage"
}

func (s *StorageArea) String() string {
	return fmt.Sprintf("%d:%s(%s)", s.ID, s.Name, s.Path)
}
