package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Resource enumerates the finite-throughput kitchen capabilities.
type Resource string

const (
	ResourceCuisine     Resource = "cuisine"
	ResourcePreparation Resource = "preparation"
	ResourceComptoir    Resource = "comptoir"
	ResourceLivraison   Resource = "livraison"
)

// AllResources lists every resource in a stable order.
func AllResources() []Resource {
	return []Resource{ResourceCuisine, ResourcePreparation, ResourceComptoir, ResourceLivraison}
}

// OrderType enumerates how an order leaves the restaurant.
type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
	OrderTypeDineIn   OrderType = "dine_in"
)

// OrderStatus tracks the order lifecycle. Transitions are owned by the
// order-lifecycle layer; the scheduling engine only reads them.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusPreparing  OrderStatus = "preparing"
	OrderStatusReady      OrderStatus = "ready"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ActiveOrderStatuses are the statuses that still consume grid capacity.
func ActiveOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusPreparing,
		OrderStatusReady,
		OrderStatusDelivering,
	}
}

// OrderSize is the standardized demand class derived from item count.
type OrderSize string

const (
	OrderSizeS OrderSize = "S"
	OrderSizeM OrderSize = "M"
	OrderSizeL OrderSize = "L"
)

// LoadIntensity is the operator-entered strength of an external load.
type LoadIntensity string

const (
	LoadIntensityLow    LoadIntensity = "low"
	LoadIntensityMedium LoadIntensity = "medium"
	LoadIntensityHigh   LoadIntensity = "high"
)

// LoadType is a categorical preset for external loads.
type LoadType string

const (
	LoadTypeDineInWave     LoadType = "dine_in_wave"
	LoadTypeCateringPickup LoadType = "catering_pickup"
	LoadTypeEvent          LoadType = "event"
)

// Restaurant is the scheduling tenant. Capacities and classification
// thresholds are configuration, not learned state.
type Restaurant struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Timezone  string `gorm:"type:varchar(32)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order carries the scheduling fields the engine owns. The rest of the order
// (items, payment, customer record) belongs to the surrounding application.
type Order struct {
	ID           string      `gorm:"type:uuid;primaryKey"`
	RestaurantID string      `gorm:"type:uuid;index"`
	Status       OrderStatus `gorm:"type:varchar(16);index"`
	Type         OrderType   `gorm:"type:varchar(16)"`
	Source       string      `gorm:"type:varchar(16)"` // phone_ai, staff, web
	CustomerName string
	ItemCount    int
	Size         OrderSize `gorm:"type:varchar(4)"`
	TransitMin   int
	CookStartAt  *time.Time `gorm:"index"`
	HandoffAt    *time.Time
	ReadyAt      *time.Time // estimated ready commitment
	Notes        string     `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Scheduled reports whether the order carries a committed schedule. Orders
// are allowed to exist without one; scheduling failure is non-fatal.
func (o Order) Scheduled() bool {
	return o.CookStartAt != nil && o.ReadyAt != nil
}

// ResourceList is a set of resources stored as a JSON array column so it
// round-trips identically on postgres, mysql and sqlite.
type ResourceList []Resource

// Value implements driver.Valuer.
func (r ResourceList) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (r *ResourceList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported resource list column type %T", value)
	}
}

// ExternalLoad is non-order demand (catering, events, dine-in waves)
// competing for the same resources as orders.
type ExternalLoad struct {
	ID            string        `gorm:"type:uuid;primaryKey"`
	RestaurantID  string        `gorm:"type:uuid;index"`
	Type          LoadType      `gorm:"type:varchar(32)"`
	Resources     ResourceList  `gorm:"type:text"`
	Intensity     LoadIntensity `gorm:"type:varchar(8)"`
	PointsPerSlot int           // derived from intensity at write time and frozen
	StartTime     time.Time     `gorm:"index"`
	DurationMin   int
	EndTime       time.Time `gorm:"index"`
	Label         string
	Recurrence    string `gorm:"type:text"` // optional RRULE; empty means one-shot
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Occurrence is one concrete time window of a (possibly recurring) load.
type Occurrence struct {
	Start time.Time
	End   time.Time
}
