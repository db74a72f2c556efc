package poi

import "strings"

// Categorize maps OSM tags to a meeting-point category; "" means unknown.
func Categorize(tags map[string]string) string {
	switch tags["amenity"] {
	case "cafe", "restaurant", "fast_food":
		return "food"
	case "bank", "post_office":
		return "service"
	case "library", "community_centre":
		return "public"
	}
	switch tags["shop"] {
	case "mall", "department_store", "supermarket":
		return "shopping"
	}
	if tags["public_transport"] != "" || tags["railway"] == "station" {
		return "transport"
	}
	if tags["tourism"] != "" {
		return "tourism"
	}
	return ""
}

// BuildAddress joins the house number and street, when tagged.
func BuildAddress(tags map[string]string) string {
	parts := make([]string, 0, 2)
	if v := tags["addr:housenumber"]; v != "" {
		parts = append(parts, v)
	}
	if v := tags["addr:street"]; v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

func ExtractAmenities(tags map[string]string) []string {
	var out []string
	if strings.Contains(tags["opening_hours"], "24/7") {
		out = append(out, "24/7")
	}
	if tags["wheelchair"] == "yes" {
		out = append(out, "wheelchair_accessible")
	}
	if v := tags["internet_access"]; v != "" && v != "no" {
		out = append(out, "wifi")
	}
	return out
}

// Importance is a popularity signal in [0,1]. Overpass has no ranking of
// its own, so well-known places are recognised by their encyclopedia and
// brand tags.
func Importance(tags map[string]string) float64 {
	score := 0.4
	if tags["wikidata"] != "" || tags["wikipedia"] != "" {
		score += 0.35
	}
	if tags["brand"] != "" || tags["operator"] != "" {
		score += 0.1
	}
	if tags["public_transport"] == "station" || tags["railway"] == "station" {
		score += 0.15
	}
	if score > 1 {
		score = 1
	}
	return score
}
