// Package travel holds the data sources agents call: travel advisories,
// sanctions, flight search and hotel search.
package travel

import (
	"sort"
	"strings"

	"github.com/t77yq/a2a-travel/internal/model"
)

type advisoryEntry struct {
	advisory model.SafetyAdvisory
	region   string
	programs []string
}

// Alternative is a safe destination suggested in place of a risky one
type Alternative struct {
	Destination string              `json:"destination"`
	Country     string              `json:"country"`
	Region      string              `json:"region"`
	Level       model.AdvisoryLevel `json:"level,omitempty"`
	Highlights  []string            `json:"highlights,omitempty"`
}

// SanctionsCheck is the outcome of a sanctions lookup
type SanctionsCheck struct {
	Country    string   `json:"country"`
	Sanctioned bool     `json:"sanctioned"`
	Programs   []string `json:"programs,omitempty"`
}

// AdvisoryTable answers safety questions from an in-memory table. It is
// read-only after construction and safe for concurrent use.
type AdvisoryTable struct {
	countries    map[string]advisoryEntry
	cities       map[string]string
	alternatives map[string][]Alternative
}

// NewAdvisoryTable returns the built-in advisory data
func NewAdvisoryTable() *AdvisoryTable {
	t := &AdvisoryTable{
		countries:    make(map[string]advisoryEntry),
		cities:       make(map[string]string),
		alternatives: make(map[string][]Alternative),
	}

	t.add("Ukraine", "eastern_europe", model.AdvisoryDoNotTravel,
		[]string{"armed conflict", "missile and drone strikes"},
		"Active armed conflict. Airspace is closed to civilian flights.",
		[]string{"Kyiv", "Kharkiv", "Donetsk", "Luhansk", "Zaporizhzhia", "Crimea"}, nil,
		"kyiv", "kiev", "kharkiv", "odesa", "odessa", "lviv", "dnipro")
	t.add("Russia", "eastern_europe", model.AdvisoryDoNotTravel,
		[]string{"armed conflict", "arbitrary detention", "limited consular support"},
		"Risk of wrongful detention and harassment. Flights and payments are restricted.",
		nil, []string{"EU restrictive measures", "OFAC Russia-related sanctions"},
		"moscow", "saint petersburg", "st petersburg", "sochi")
	t.add("Belarus", "eastern_europe", model.AdvisoryDoNotTravel,
		[]string{"arbitrary enforcement of laws", "proximity to conflict"},
		"Risk of detention. Borders with neighbouring countries may close without notice.",
		nil, []string{"EU restrictive measures", "OFAC Belarus sanctions"},
		"minsk")
	t.add("Syria", "middle_east", model.AdvisoryDoNotTravel,
		[]string{"terrorism", "civil unrest", "kidnapping", "armed conflict"},
		"No consular services are available.",
		nil, []string{"OFAC Syria sanctions"},
		"damascus", "aleppo")
	t.add("Afghanistan", "south_asia", model.AdvisoryDoNotTravel,
		[]string{"terrorism", "kidnapping", "civil unrest"},
		"Embassy operations are suspended.",
		nil, nil,
		"kabul", "kandahar")
	t.add("North Korea", "east_asia", model.AdvisoryDoNotTravel,
		[]string{"arbitrary detention", "travel restrictions"},
		"Passports are not valid for travel without special validation.",
		nil, []string{"UN Security Council sanctions", "OFAC North Korea sanctions"},
		"pyongyang")
	t.add("Iran", "middle_east", model.AdvisoryDoNotTravel,
		[]string{"kidnapping", "arbitrary arrest", "terrorism"},
		"Dual nationals face an elevated risk of detention.",
		nil, []string{"OFAC Iran sanctions"},
		"tehran", "isfahan")
	t.add("Yemen", "middle_east", model.AdvisoryDoNotTravel,
		[]string{"terrorism", "civil unrest", "armed conflict", "landmines"},
		"Commercial flights are irregular.",
		nil, nil,
		"sanaa", "aden")
	t.add("Somalia", "east_africa", model.AdvisoryDoNotTravel,
		[]string{"crime", "terrorism", "piracy", "kidnapping"},
		"Medical and consular support are very limited.",
		nil, nil,
		"mogadishu")
	t.add("Venezuela", "south_america", model.AdvisoryReconsider,
		[]string{"crime", "civil unrest", "poor health infrastructure"},
		"Shortages of food, water and medicine are common.",
		nil, []string{"OFAC Venezuela sanctions"},
		"caracas")
	t.add("Haiti", "caribbean", model.AdvisoryDoNotTravel,
		[]string{"kidnapping", "crime", "civil unrest"},
		"Gang violence affects most of the capital.",
		nil, nil,
		"port-au-prince", "port au prince")
	t.add("Mexico", "north_america", model.AdvisoryExerciseCaution,
		[]string{"crime", "kidnapping in some states"},
		"Most tourist areas are unaffected; check state-level advisories.",
		[]string{"Sinaloa", "Tamaulipas", "Zacatecas"}, nil,
		"mexico city", "cancun", "guadalajara")
	t.add("Turkey", "eastern_mediterranean", model.AdvisoryExerciseCaution,
		[]string{"terrorism", "arbitrary detentions"},
		"Avoid the border areas with Syria.",
		[]string{"Sirnak", "Hakkari"}, nil,
		"istanbul", "ankara", "antalya")

	t.alternatives["eastern_europe"] = []Alternative{
		{Destination: "Krakow", Country: "Poland", Region: "eastern_europe", Highlights: []string{"old town", "Wawel castle"}},
		{Destination: "Prague", Country: "Czech Republic", Region: "eastern_europe", Highlights: []string{"architecture", "riverside walks"}},
		{Destination: "Bucharest", Country: "Romania", Region: "eastern_europe", Highlights: []string{"Palace of Parliament", "old town"}},
		{Destination: "Vilnius", Country: "Lithuania", Region: "eastern_europe", Highlights: []string{"baroque old town"}},
	}
	t.alternatives["middle_east"] = []Alternative{
		{Destination: "Amman", Country: "Jordan", Region: "middle_east", Highlights: []string{"Petra day trips", "citadel"}},
		{Destination: "Muscat", Country: "Oman", Region: "middle_east", Highlights: []string{"coastline", "souks"}},
		{Destination: "Dubai", Country: "United Arab Emirates", Region: "middle_east", Highlights: []string{"architecture", "desert tours"}},
	}
	t.alternatives["south_asia"] = []Alternative{
		{Destination: "Kathmandu", Country: "Nepal", Region: "south_asia", Highlights: []string{"trekking", "temples"}},
		{Destination: "Colombo", Country: "Sri Lanka", Region: "south_asia", Highlights: []string{"beaches", "tea country"}},
	}
	t.alternatives["east_asia"] = []Alternative{
		{Destination: "Seoul", Country: "South Korea", Region: "east_asia", Highlights: []string{"palaces", "food markets"}},
		{Destination: "Tokyo", Country: "Japan", Region: "east_asia", Highlights: []string{"temples", "food"}},
	}
	t.alternatives["east_africa"] = []Alternative{
		{Destination: "Nairobi", Country: "Kenya", Region: "east_africa", Highlights: []string{"safari"}},
		{Destination: "Zanzibar", Country: "Tanzania", Region: "east_africa", Highlights: []string{"beaches", "Stone Town"}},
	}
	t.alternatives["south_america"] = []Alternative{
		{Destination: "Cartagena", Country: "Colombia", Region: "south_america", Highlights: []string{"walled city"}},
		{Destination: "Lima", Country: "Peru", Region: "south_america", Highlights: []string{"cuisine", "Machu Picchu access"}},
	}
	t.alternatives["caribbean"] = []Alternative{
		{Destination: "Punta Cana", Country: "Dominican Republic", Region: "caribbean", Highlights: []string{"beaches"}},
		{Destination: "San Juan", Country: "Puerto Rico", Region: "caribbean", Highlights: []string{"old San Juan"}},
	}
	t.alternatives[""] = []Alternative{
		{Destination: "Lisbon", Country: "Portugal", Region: "western_europe", Highlights: []string{"trams", "riverfront"}},
		{Destination: "Copenhagen", Country: "Denmark", Region: "northern_europe", Highlights: []string{"design", "cycling"}},
		{Destination: "Vienna", Country: "Austria", Region: "central_europe", Highlights: []string{"museums", "coffee houses"}},
	}

	return t
}

func (t *AdvisoryTable) add(country, region string, level model.AdvisoryLevel, reasons []string, details string, regions, programs []string, cities ...string) {
	key := normalize(country)
	t.countries[key] = advisoryEntry{
		advisory: model.SafetyAdvisory{
			Country:   country,
			Level:     level,
			Reason:    reasons,
			Details:   details,
			Regions:   regions,
			Sanctions: len(programs) > 0,
		},
		region:   region,
		programs: programs,
	}
	for _, city := range cities {
		t.cities[normalize(city)] = key
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// lookup resolves a country or a known city to its advisory entry. Inputs such
// as "Kyiv, Ukraine" match on any comma separated part.
func (t *AdvisoryTable) lookup(destination string) (advisoryEntry, bool) {
	parts := append([]string{destination}, strings.Split(destination, ",")...)
	for _, part := range parts {
		key := normalize(part)
		if e, ok := t.countries[key]; ok {
			return e, true
		}
		if country, ok := t.cities[key]; ok {
			return t.countries[country], true
		}
	}
	return advisoryEntry{}, false
}

// Check looks up the advisory for destination. A destination is unsafe when its
// advisory says reconsider or do not travel.
func (t *AdvisoryTable) Check(destination string) model.SafetyCheck {
	check := model.SafetyCheck{Destination: destination, Safe: true}
	e, ok := t.lookup(destination)
	if !ok {
		return check
	}

	advisory := e.advisory
	check.Advisory = &advisory
	check.Safe = advisory.Level == model.AdvisoryExerciseCaution
	return check
}

// IsHighRisk reports whether travel to destination should be discouraged
func (t *AdvisoryTable) IsHighRisk(destination string) bool {
	return !t.Check(destination).Safe
}

// Sanctions reports the sanctions programs covering country
func (t *AdvisoryTable) Sanctions(country string) SanctionsCheck {
	check := SanctionsCheck{Country: country}
	if e, ok := t.lookup(country); ok && len(e.programs) > 0 {
		check.Sanctioned = true
		check.Programs = append([]string(nil), e.programs...)
	}
	return check
}

// Alternatives suggests up to limit safe destinations near destination. Unknown
// regions get general suggestions. limit <= 0 returns all.
func (t *AdvisoryTable) Alternatives(destination string, limit int) []Alternative {
	region := ""
	if e, ok := t.lookup(destination); ok {
		region = e.region
	}

	candidates := t.alternatives[region]
	if len(candidates) == 0 {
		candidates = t.alternatives[""]
	}

	out := make([]Alternative, 0, len(candidates))
	for _, alt := range candidates {
		if t.IsHighRisk(alt.Country) {
			continue
		}
		if check := t.Check(alt.Country); check.Advisory != nil {
			alt.Level = check.Advisory.Level
		}
		out = append(out, alt)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
