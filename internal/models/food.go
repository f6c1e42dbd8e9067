// internal/models/food.go
package models

import (
	"time"
)

// User is a chat participant known to the bot.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Timezone  string    `json:"timezone"` // IANA name, empty means default
	CreatedAt time.Time `json:"created_at"`
}

// Day is a logical accounting day. Exactly one day per user is current.
type Day struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Number    int       `json:"number"`
	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Dish is a single food item as returned by the understanding service.
type Dish struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Fat      int    `json:"fat"`
	Carbs    int    `json:"carbs"`
	Grams    int    `json:"grams"`
}

// FoodEntry is a persisted dish owned by one user and one day.
type FoodEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	DayID     int64     `json:"day_id"`
	Name      string    `json:"name"`
	Calories  int       `json:"calories"`
	Protein   int       `json:"protein"`
	Fat       int       `json:"fat"`
	Carbs     int       `json:"carbs"`
	Grams     int       `json:"grams"`
	CreatedAt time.Time `json:"created_at"`
}

// Dish returns the nutrition values of e.
func (e FoodEntry) Dish() Dish {
	return Dish{
		Name:     e.Name,
		Calories: e.Calories,
		Protein:  e.Protein,
		Fat:      e.Fat,
		Carbs:    e.Carbs,
		Grams:    e.Grams,
	}
}

// DayTotals aggregates the entries of one day.
type DayTotals struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Fat      int `json:"fat"`
	Carbs    int `json:"carbs"`
	Count    int `json:"count"`
}

// Totals sums dishes into a DayTotals.
func Totals(dishes []Dish) DayTotals {
	t := DayTotals{Count: len(dishes)}
	for _, d := range dishes {
		t.Calories += d.Calories
		t.Protein += d.Protein
		t.Fat += d.Fat
		t.Carbs += d.Carbs
	}
	return t
}
