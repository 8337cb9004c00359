package models

import "time"

// TableStatus is the occupancy state of a restaurant table
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
)

// Table is a restaurant table an order can be attached to. Take-away
// orders carry no table.
type Table struct {
	ID        int64
	Zone      string
	Number    string
	Capacity  int
	Status    TableStatus
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
