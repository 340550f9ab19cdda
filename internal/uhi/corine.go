package uhi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LandUseUnknown is assigned to cells whose dominant polygon carries a
// CORINE code outside the mapping table.
const LandUseUnknown = "unknown"

// corineLandUse maps CORINE level-3 codes to land-use type names.
var corineLandUse = map[int]string{
	// Urban fabric
	111: "urban_continuous",
	112: "urban_discontinuous",

	// Industrial, commercial and transport units
	121: "industrial_commercial",
	122: "road_transport",
	123: "port_areas",
	124: "airports",

	// Mine, dump and construction sites
	131: "mineral_extraction",
	132: "dump_sites",
	133: "construction_sites",

	// Artificial non-agricultural vegetated areas
	141: "green_urban_areas",
	142: "sport_leisure",

	// Arable land
	211: "non_irrigated_arable",
	212: "irrigated_arable",
	213: "rice_fields",

	// Permanent crops
	221: "vineyards",
	222: "fruit_trees",
	223: "olive_groves",

	// Pastures
	231: "pastures",

	// Heterogeneous agricultural areas
	241: "agriculture_natural_mixed",
	242: "complex_cultivation",
	243: "agriculture_natural_areas",
	244: "agro_forestry",

	// Forest
	311: "broad_leaved_forest",
	312: "coniferous_forest",
	313: "mixed_forest",

	// Shrub and herbaceous vegetation
	321: "natural_grasslands",
	322: "moors_heathland",
	323: "sclerophyllous_vegetation",
	324: "transitional_woodland",

	// Open spaces with little or no vegetation
	331: "beaches_dunes",
	332: "bare_rocks",
	333: "sparsely_vegetated",
	334: "burnt_areas",
	335: "glaciers_snow",

	// Wetlands
	411: "inland_marshes",
	412: "peat_bogs",
	421: "salt_marshes",
	422: "salines",
	423: "intertidal_flats",

	// Water bodies
	511: "water_courses",
	512: "water_bodies",
	521: "coastal_lagoons",
	522: "estuaries",
	523: "sea_ocean",
}

// corineImpervious holds the imperviousness coefficient per detailed
// land-use type, in [0,1].
var corineImpervious = map[string]float64{
	"urban_continuous":          0.85,
	"urban_discontinuous":       0.65,
	"industrial_commercial":     0.90,
	"road_transport":            0.95,
	"port_areas":                0.80,
	"airports":                  0.75,
	"mineral_extraction":        0.30,
	"dump_sites":                0.40,
	"construction_sites":        0.50,
	"green_urban_areas":         0.15,
	"sport_leisure":             0.25,
	"non_irrigated_arable":      0.02,
	"irrigated_arable":          0.02,
	"rice_fields":               0.02,
	"vineyards":                 0.05,
	"fruit_trees":               0.05,
	"olive_groves":              0.05,
	"pastures":                  0.02,
	"agriculture_natural_mixed": 0.05,
	"complex_cultivation":       0.08,
	"agriculture_natural_areas": 0.03,
	"agro_forestry":             0.03,
	"broad_leaved_forest":       0.01,
	"coniferous_forest":         0.01,
	"mixed_forest":              0.01,
	"natural_grasslands":        0.01,
	"moors_heathland":           0.01,
	"sclerophyllous_vegetation": 0.02,
	"transitional_woodland":     0.02,
	"beaches_dunes":             0.05,
	"bare_rocks":                0.10,
	"sparsely_vegetated":        0.05,
	"burnt_areas":               0.03,
	"glaciers_snow":             0.00,
	"inland_marshes":            0.00,
	"peat_bogs":                 0.00,
	"salt_marshes":              0.00,
	"salines":                   0.00,
	"intertidal_flats":          0.00,
	"water_courses":             0.00,
	"water_bodies":              0.00,
	"coastal_lagoons":           0.00,
	"estuaries":                 0.00,
	"sea_ocean":                 0.00,
}

// corineGrouped collapses detailed types into six grouped categories for
// reporting: high-density urban heats most, water and natural cool most.
var corineGrouped = map[string]string{
	"urban_continuous":      "high_density_urban",
	"industrial_commercial": "high_density_urban",
	"road_transport":        "high_density_urban",
	"port_areas":            "high_density_urban",
	"airports":              "high_density_urban",

	"urban_discontinuous": "low_density_urban",
	"mineral_extraction":  "low_density_urban",
	"dump_sites":          "low_density_urban",
	"construction_sites":  "low_density_urban",

	"green_urban_areas": "urban_green",
	"sport_leisure":     "urban_green",

	"non_irrigated_arable":      "agricultural",
	"irrigated_arable":          "agricultural",
	"rice_fields":               "agricultural",
	"vineyards":                 "agricultural",
	"fruit_trees":               "agricultural",
	"olive_groves":              "agricultural",
	"pastures":                  "agricultural",
	"agriculture_natural_mixed": "agricultural",
	"complex_cultivation":       "agricultural",
	"agriculture_natural_areas": "agricultural",
	"agro_forestry":             "agricultural",

	"broad_leaved_forest":       "natural_vegetation",
	"coniferous_forest":         "natural_vegetation",
	"mixed_forest":              "natural_vegetation",
	"natural_grasslands":        "natural_vegetation",
	"moors_heathland":           "natural_vegetation",
	"sclerophyllous_vegetation": "natural_vegetation",
	"transitional_woodland":     "natural_vegetation",

	"beaches_dunes":      "water_and_natural",
	"bare_rocks":         "water_and_natural",
	"sparsely_vegetated": "water_and_natural",
	"burnt_areas":        "water_and_natural",
	"glaciers_snow":      "water_and_natural",
	"inland_marshes":     "water_and_natural",
	"peat_bogs":          "water_and_natural",
	"salt_marshes":       "water_and_natural",
	"salines":            "water_and_natural",
	"intertidal_flats":   "water_and_natural",
	"water_courses":      "water_and_natural",
	"water_bodies":       "water_and_natural",
	"coastal_lagoons":    "water_and_natural",
	"estuaries":          "water_and_natural",
	"sea_ocean":          "water_and_natural",
}

// corineGroupedImpervious holds area-weighted coefficients for the grouped
// categories.
var corineGroupedImpervious = map[string]float64{
	"high_density_urban": 0.88,
	"low_density_urban":  0.56,
	"urban_green":        0.18,
	"agricultural":       0.04,
	"natural_vegetation": 0.01,
	"water_and_natural":  0.02,
}

// LandUseScheme resolves CORINE codes to category names and imperviousness
// coefficients. The zero value is not usable; construct via NewLandUseScheme.
// Resolution is a pure lookup, so equal codes always yield equal
// coefficients within a run.
type LandUseScheme struct {
	grouped   bool
	overrides map[string]float64
}

// NewLandUseScheme builds a scheme. When grouped is true the detailed types
// collapse into the six grouped categories.
func NewLandUseScheme(grouped bool) *LandUseScheme {
	return &LandUseScheme{grouped: grouped}
}

// LoadCoefficientOverrides merges a YAML mapping of category name to
// coefficient over the built-in tables. Values outside [0,1] are rejected.
func (s *LandUseScheme) LoadCoefficientOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "landuse: read coefficient overrides %s", path)
	}
	overrides := map[string]float64{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return eris.Wrap(err, "landuse: parse coefficient overrides")
	}
	for name, v := range overrides {
		if v < 0 || v > 1 {
			return eris.Errorf("landuse: coefficient for %q out of [0,1]: %v", name, v)
		}
	}
	s.overrides = overrides
	return nil
}

// Digest returns a stable identifier for the scheme configuration. Two
// schemes resolve every code identically exactly when their digests match,
// so cache keys built from the digest never mix grouped with detailed
// results or built-in with overridden coefficients.
func (s *LandUseScheme) Digest() string {
	var b strings.Builder
	if s.grouped {
		b.WriteString("grouped")
	} else {
		b.WriteString("detailed")
	}
	names := make([]string, 0, len(s.overrides))
	for name := range s.overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "|%s=%.6f", name, s.overrides[name])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// Resolve maps a CORINE code to its category name and imperviousness
// coefficient. Unknown codes resolve to LandUseUnknown with coefficient 0.
func (s *LandUseScheme) Resolve(code int) (string, float64) {
	name, ok := corineLandUse[code]
	if !ok {
		return LandUseUnknown, 0.0
	}
	coeffs := corineImpervious
	if s.grouped {
		name = corineGrouped[name]
		coeffs = corineGroupedImpervious
	}
	if s.overrides != nil {
		if v, ok := s.overrides[name]; ok {
			return name, v
		}
	}
	return name, coeffs[name]
}
