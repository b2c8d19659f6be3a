package model

// AdvisoryLevel grades how strongly travel is discouraged
type AdvisoryLevel string

const (
	AdvisoryExerciseCaution AdvisoryLevel = "exercise_caution"
	AdvisoryReconsider      AdvisoryLevel = "reconsider_travel"
	AdvisoryDoNotTravel     AdvisoryLevel = "do_not_travel"
)

// SafetyAdvisory is the published advisory for a country
type SafetyAdvisory struct {
	Country   string        `json:"country"`
	Level     AdvisoryLevel `json:"level"`
	Reason    []string      `json:"reason"`
	Details   string        `json:"details"`
	Regions   []string      `json:"regions,omitempty"`
	Sanctions bool          `json:"sanctions,omitempty"`
}

// SafetyCheck is the outcome of a destination safety lookup
type SafetyCheck struct {
	Destination string          `json:"destination"`
	Safe        bool            `json:"safe"`
	Advisory    *SafetyAdvisory `json:"advisory,omitempty"`
}

// Flight is one flight offer
type Flight struct {
	ID            string  `json:"id"`
	Airline       string  `json:"airline"`
	FlightNumber  string  `json:"flightNumber,omitempty"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency,omitempty"`
	DepartureTime string  `json:"departureTime"`
	ArrivalTime   string  `json:"arrivalTime"`
	Duration      string  `json:"duration"`
	DurationMins  int     `json:"durationMinutes"`
	Stops         int     `json:"stops"`
}

// Hotel is one hotel offer
type Hotel struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	City          string   `json:"city"`
	Address       string   `json:"address"`
	Rating        float64  `json:"rating"`
	PricePerNight float64  `json:"pricePerNight"`
	Currency      string   `json:"currency,omitempty"`
	Amenities     []string `json:"amenities"`
	Description   string   `json:"description,omitempty"`
}
