package claims

import (
	"cmp"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Catalog holds the fixed vehicle naming tables: which vehicle types are
// claimable, abbreviations, and group labels that may name several types.
type Catalog struct {
	claimable  []string
	aliases    map[string]string
	groups     map[string][]string
	lockExempt []*regexp.Regexp

	aliasOrder []string
	groupOrder []string
}

var (
	defaultTanks = []string{"T62", "T72", "T90", "M1A1", "M1A2", "M60", "FV4034", "LEOPARD", "ZTZ99"}
	defaultHelis = []string{
		"MI8", "SA330", "UH60", "UH1", "CH146", "CH178", "MRH90", "Z8", "RAVEN", "LOACHSCOUT", "LOACHCAS",
	}

	defaultClaimable = []string{
		"BTR80", "BTR82", "ASLAV", "LAV25", "LAV6", "LAVIII", "COYOTE",
		"PARSIII25MM", "PARSIIIM2", "PARSIIIMG3", "PARSIIIMK19",
		"ACV25MM", "ACVM2", "ACVMG3",
		"M1126", "M1128", "M2A3", "M7A3",
		"ZBL08", "ZBD04", "ZBD05", "ZTD05",
		"BMP1", "BMP2", "BMP3", "BMD1", "BMD4",
		"BM21", "MTLBM6MB",
		"FV107", "FV432RWS", "FV510UA", "FV510",
		"SPRUT",
	}

	defaultGroups = map[string][]string{
		"BTR":     {"BTR80", "BTR82"},
		"LAV":     {"ASLAV", "LAV25", "LAV6", "LAVIII", "COYOTE"},
		"BMP":     {"BMP1", "BMP2", "BMP3"},
		"BMD":     {"BMD1", "BMD4"},
		"ACV":     {"ACV25MM", "ACVM2", "ACVMG3"},
		"PARS":    {"PARSIII25MM", "PARSIIIM2", "PARSIIIMG3", "PARSIIIMK19"},
		"MBT":     defaultTanks,
		"TANK":    defaultTanks,
		"HELI":    defaultHelis,
		"LOACH":   {"LOACHSCOUT", "LOACHCAS"},
		"WARRIOR": {"FV510UA", "FV510"},
		"BRADLEY": {"M2A3", "M7A3"},
		"ABRAMS":  {"M1A1", "M1A2"},
		"ZBD":     {"ZBD04", "ZBD05"},
	}

	defaultAliases = map[string]string{
		"BULLDOGRWS": "FV432RWS",
		"SCIMITAR":   "FV107",
		"LAV3":       "LAVIII",
		"ACVIFV":     "ACV25MM",
		"GRAD":       "BM21",
		"LEO":        "LEOPARD",
		"PARS25MM":   "PARSIII25MM",
		"PARSM2":     "PARSIIIM2",
		"PARSMG3":    "PARSIIIMG3",
		"PARSMK19":   "PARSIIIMK19",
		"ZBL":        "ZBL08",
		"ZTD":        "ZTD05",
		"ZTZ":        "ZTZ99",
		"TYPE04":     "ZBD04",
		"TYPE08":     "ZBL08",
		"TYPE99":     "ZTZ99",
		"MTLBM":      "MTLBM6MB",
		"MTLB30MM":   "MTLBM6MB",
		"MGS":        "M1128",
		"CAS":        "LOACHCAS",
	}

	defaultLockExempt = []string{`(?i)mortar`, `(?i)ub.?32`, `(?i)m.?121`}
)

// DefaultCatalog returns the built-in naming tables.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		append(slices.Clone(defaultClaimable), append(slices.Clone(defaultTanks), defaultHelis...)...),
		defaultAliases,
		defaultGroups,
		defaultLockExempt,
	)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog builds a catalog. Names are normalized the same way squad labels
// are. lockExempt entries are regular expressions matched against raw squad
// names.
func NewCatalog(claimable []string, aliases map[string]string, groups map[string][]string, lockExempt []string) (*Catalog, error) {
	c := &Catalog{
		aliases: make(map[string]string, len(aliases)),
		groups:  make(map[string][]string, len(groups)),
	}

	for _, name := range claimable {
		if n := normalize(name); n != "" && !slices.Contains(c.claimable, n) {
			c.claimable = append(c.claimable, n)
		}
	}
	sortLongestFirst(c.claimable)

	for alias, target := range aliases {
		a, t := normalize(alias), normalize(target)
		if a == "" || t == "" {
			return nil, fmt.Errorf("invalid alias %q -> %q", alias, target)
		}
		c.aliases[a] = t
	}
	for label, members := range groups {
		g := normalize(label)
		if g == "" {
			return nil, fmt.Errorf("invalid group label %q", label)
		}
		for _, m := range members {
			if n := normalize(m); n != "" {
				c.groups[g] = append(c.groups[g], n)
			}
		}
	}

	for _, expr := range lockExempt {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid lock exemption %q: %w", expr, err)
		}
		c.lockExempt = append(c.lockExempt, re)
	}

	c.aliasOrder = slices.Collect(maps.Keys(c.aliases))
	sortLongestFirst(c.aliasOrder)
	c.groupOrder = slices.Collect(maps.Keys(c.groups))
	sortLongestFirst(c.groupOrder)

	return c, nil
}

// Extend returns a copy of c with extra aliases and groups. Entries override
// defaults with the same label.
func (c *Catalog) Extend(aliases map[string]string, groups map[string][]string) (*Catalog, error) {
	mergedAliases := maps.Clone(c.aliases)
	for alias, target := range aliases {
		mergedAliases[normalize(alias)] = target
	}
	mergedGroups := maps.Clone(c.groups)
	for label, members := range groups {
		mergedGroups[normalize(label)] = members
	}

	exempt := make([]string, 0, len(c.lockExempt))
	for _, re := range c.lockExempt {
		exempt = append(exempt, re.String())
	}
	return NewCatalog(c.claimable, mergedAliases, mergedGroups, exempt)
}

// Canonical maps a roster vehicle name to its claimable type.
func (c *Catalog) Canonical(vehicleName string) (string, bool) {
	n := normalize(vehicleName)
	for _, name := range c.claimable {
		if strings.HasPrefix(n, name) {
			return name, true
		}
	}
	return "", false
}

// LockExempt reports whether a squad may stay locked while undersized
// without holding a claim.
func (c *Catalog) LockExempt(squadName string) bool {
	for _, re := range c.lockExempt {
		if re.MatchString(squadName) {
			return true
		}
	}
	return false
}

// normalize uppercases s and drops everything but letters and digits.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizeLabel prepares a squad label for resolution: normalize, then drop
// the leading squad number some players type ("1 BTR", "2-BTR").
func NormalizeLabel(label string) string {
	return strings.TrimLeftFunc(normalize(label), unicode.IsDigit)
}

func sortLongestFirst(names []string) {
	slices.SortStableFunc(names, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}
