package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transmission is the gearbox type of a listed car.
type Transmission string

const (
	TransmissionAutomatic Transmission = "Automatic"
	TransmissionManual    Transmission = "Manual"
	TransmissionCVT       Transmission = "CVT"
)

func (t Transmission) Valid() bool {
	switch t {
	case TransmissionAutomatic, TransmissionManual, TransmissionCVT:
		return true
	}
	return false
}

// FuelType is the energy source of a listed car.
type FuelType string

const (
	FuelPetrol   FuelType = "Petrol"
	FuelDiesel   FuelType = "Diesel"
	FuelElectric FuelType = "Electric"
	FuelHybrid   FuelType = "Hybrid"
	FuelCNG      FuelType = "CNG"
)

func (f FuelType) Valid() bool {
	switch f {
	case FuelPetrol, FuelDiesel, FuelElectric, FuelHybrid, FuelCNG:
		return true
	}
	return false
}

// Condition describes the state a car is sold in.
type Condition string

const (
	ConditionNew       Condition = "New"
	ConditionUsed      Condition = "Used"
	ConditionCertified Condition = "Certified Pre-Owned"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionUsed, ConditionCertified:
		return true
	}
	return false
}

// Car is a vehicle listing. Seller never changes after creation and
// IsSold flips to true at most once, when a buy request is accepted.
type Car struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Seller       primitive.ObjectID `bson:"seller" json:"seller"`
	Brand        string             `bson:"brand" json:"brand"`
	Model        string             `bson:"model" json:"model"`
	Year         int                `bson:"year" json:"year"`
	Price        float64            `bson:"price" json:"price"`
	Mileage      float64            `bson:"mileage" json:"mileage"`
	Transmission Transmission       `bson:"transmission" json:"transmission"`
	FuelType     FuelType           `bson:"fuel_type" json:"fuelType"`
	Condition    Condition          `bson:"condition" json:"condition"`
	Location     string             `bson:"location" json:"location"`
	Description  string             `bson:"description,omitempty" json:"description,omitempty"`
	Images       []string           `bson:"images" json:"images"`
	IsSold       bool               `bson:"is_sold" json:"isSold"`
	SoldAt       *time.Time         `bson:"sold_at,omitempty" json:"soldAt,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

// CarInput is the payload for creating a listing. Numeric fields are
// pointers so that "missing" can be told apart from zero.
type CarInput struct {
	Brand        string       `json:"brand" validate:"required"`
	Model        string       `json:"model" validate:"required"`
	Year         *int         `json:"year" validate:"required,modelyear"`
	Price        *float64     `json:"price" validate:"required,gte=0"`
	Mileage      *float64     `json:"mileage" validate:"required,gte=0"`
	Transmission Transmission `json:"transmission" validate:"required,transmission"`
	FuelType     FuelType     `json:"fuelType" validate:"required,fueltype"`
	Condition    Condition    `json:"condition" validate:"required,condition"`
	Location     string       `json:"location" validate:"required"`
	Description  string       `json:"description"`
	Images       []string     `json:"images" validate:"omitempty,dive,required"`
}

// CarUpdate carries the mutable listing fields; nil means "leave as is".
// Seller and sale state are not part of it.
type CarUpdate struct {
	Brand        *string       `json:"brand" validate:"omitempty,min=1"`
	Model        *string       `json:"model" validate:"omitempty,min=1"`
	Year         *int          `json:"year" validate:"omitempty,modelyear"`
	Price        *float64      `json:"price" validate:"omitempty,gte=0"`
	Mileage      *float64      `json:"mileage" validate:"omitempty,gte=0"`
	Transmission *Transmission `json:"transmission" validate:"omitempty,transmission"`
	FuelType     *FuelType     `json:"fuelType" validate:"omitempty,fueltype"`
	Condition    *Condition    `json:"condition" validate:"omitempty,condition"`
	Location     *string       `json:"location" validate:"omitempty,min=1"`
	Description  *string       `json:"description"`
	Images       *[]string     `json:"images"`
}

// Empty reports whether the update changes nothing.
func (u CarUpdate) Empty() bool {
	return u.Brand == nil && u.Model == nil && u.Year == nil && u.Price == nil &&
		u.Mileage == nil && u.Transmission == nil && u.FuelType == nil &&
		u.Condition == nil && u.Location == nil && u.Description == nil && u.Images == nil
}

// CarSort selects the ordering of a listing query.
type CarSort string

const (
	SortNewest       CarSort = "newest"
	SortOldest       CarSort = "oldest"
	SortLowestPrice  CarSort = "lowestPrice"
	SortHighestPrice CarSort = "highestPrice"
)

// ParseCarSort falls back to newest for unknown or empty keys.
func ParseCarSort(s string) CarSort {
	switch CarSort(s) {
	case SortOldest, SortLowestPrice, SortHighestPrice:
		return CarSort(s)
	default:
		return SortNewest
	}
}

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// CarQuery is the filter of the public listing search. Unsold cars only.
type CarQuery struct {
	Brand        string
	Model        string
	Location     string
	MinYear      *int
	MaxYear      *int
	MinPrice     *float64
	MaxPrice     *float64
	Transmission Transmission
	FuelType     FuelType
	Condition    Condition
	Sort         CarSort
	Page         int
	Limit        int
}

// MaxPage keeps Skip from overflowing for any limit up to MaxPageSize.
const MaxPage = math.MaxInt32 / MaxPageSize

// Normalize clamps paging to sane values.
func (q *CarQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	q.Sort = ParseCarSort(string(q.Sort))
}

// Skip is the number of documents before the requested page.
func (q CarQuery) Skip() int64 {
	return int64(q.Page-1) * int64(q.Limit)
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCars   int64 `json:"totalCars"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

// NewPagination derives paging flags from a normalized query.
func NewPagination(q CarQuery, returned int, total int64) Pagination {
	pages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return Pagination{
		CurrentPage: q.Page,
		TotalPages:  pages,
		TotalCars:   total,
		HasNext:     q.Skip()+int64(returned) < total,
		HasPrev:     q.Page > 1,
	}
}

// CarPage is one page of listing results.
type CarPage struct {
	Cars       []Car      `json:"cars"`
	Pagination Pagination `json:"pagination"`
}

// BrandCount is one row of the popular brands aggregation.
type BrandCount struct {
	Brand string `bson:"_id" json:"brand"`
	Count int64  `bson:"count" json:"count"`
}
