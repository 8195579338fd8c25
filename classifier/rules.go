// Package classifier turns an utterance into an inquiry.Classification, using
// an LLM when one is configured and deterministic rules otherwise.
package classifier

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

// Rule names reported with a rule-based decision.
const (
	RuleFlightStatus      = "flight_status"
	RuleFlightAnalytics   = "flight_analytics"
	RuleAnalyticsFollowUp = "analytics_follow_up"
	RuleNone              = "none"
)

var (
	flightCandidateRe = regexp.MustCompile(`\b([A-Z]{2}|[A-Z][0-9]|[0-9][A-Z])(\s*)([0-9]{1,4})\b`)
	yearRe            = regexp.MustCompile(`\b(20[0-9]{2})\b`)

	statusKeywordRe = regexp.MustCompile(`\b(?:status|delay|delayed|on[- ]time|departed|departing|departure|arrived|arriving|arrival|landed|landing|gate|terminal|flight|boarding|cancell?ed|track|where is)\b`)

	analyticsKeywordRe = regexp.MustCompile(`\b(?:cheapest|cheaper|cheap|lowest|price|prices|pricing|fare|fares|cost|costs|expensive|on[- ]time|punctual\w*|delay trends?|delays|delayed|average delay|day of (?:the )?week|which day|weekdays?|weekends?|when|flights|fly|flying|average|historical)\b`)

	followUpRe = regexp.MustCompile(`\b(?:what about|how about|what if|instead|also|another|different|and)\b`)

	delayTrendRe = regexp.MustCompile(`\b(?:delay trends?|delays?|delayed|average delay)\b`)
	onTimeRe     = regexp.MustCompile(`\b(?:on[- ]time|punctual\w*)\b`)
	dayOfWeekRe  = regexp.MustCompile(`\b(?:day|days|weekdays?|weekends?|when)\b`)
	cheapestRe   = regexp.MustCompile(`\b(?:cheapest|cheaper|cheap|lowest|price|prices|fare|fares)\b`)
)

// notFlightPrefixes are two-letter words that precede numbers in ordinary
// speech ("in 2023", "to 5"). They only disqualify a spaced designator.
var notFlightPrefixes = map[string]bool{
	"IN": true, "TO": true, "ON": true, "AT": true, "OF": true, "BY": true,
	"IS": true, "IT": true, "OR": true, "AN": true, "AS": true, "BE": true,
	"DO": true, "GO": true, "IF": true, "ME": true, "MY": true, "NO": true,
	"SO": true, "UP": true, "US": true, "WE": true,
}

// Match is the outcome of rule-based classification.
type Match struct {
	Classification inquiry.Classification
	Rule           string
}

type role int

const (
	roleNone role = iota
	roleFrom
	roleTo
)

type word struct {
	text       string // uppercase
	typedUpper bool
}

type mention struct {
	code string
	role role
}

// features are extracted once per utterance and shared by every rule.
type features struct {
	lower        string
	flightNumber string
	mentions     []mention
	distinct     int
	statusKW     bool
	analyticsKW  bool
	followUp     bool
	modifier     inquiry.IntentModifier
	year         int
}

type rule struct {
	name     string
	priority int
	match    func(f *features) (inquiry.Classification, bool)
}

// RuleBasedClassifier is a deterministic, turn-local classifier. Rules are
// evaluated in ascending priority and the first match wins.
type RuleBasedClassifier struct {
	rules []rule
	names map[string]string
	now   func() time.Time
}

// RuleOption configures a RuleBasedClassifier.
type RuleOption func(*RuleBasedClassifier)

// WithClock sets the clock used to resolve "last year" and "this year".
func WithClock(now func() time.Time) RuleOption {
	return func(c *RuleBasedClassifier) {
		c.now = now
	}
}

// WithAirportNames adds or overrides spoken airport names.
func WithAirportNames(names map[string]string) RuleOption {
	return func(c *RuleBasedClassifier) {
		for name, code := range names {
			c.names[joinTokens(tokenize(name))] = strings.ToUpper(code)
		}
	}
}

// NewRuleBasedClassifier creates a classifier with the default rule set.
func NewRuleBasedClassifier(opts ...RuleOption) *RuleBasedClassifier {
	c := &RuleBasedClassifier{
		names: make(map[string]string, len(airportNames)),
		now:   time.Now,
	}
	for name, code := range airportNames {
		c.names[name] = code
	}
	for _, opt := range opts {
		opt(c)
	}

	c.rules = []rule{
		{name: RuleAnalyticsFollowUp, priority: 30, match: matchAnalyticsFollowUp},
		{name: RuleFlightAnalytics, priority: 20, match: matchFlightAnalytics},
		{name: RuleFlightStatus, priority: 10, match: matchFlightStatus},
	}
	sort.SliceStable(c.rules, func(i, j int) bool {
		return c.rules[i].priority < c.rules[j].priority
	})
	return c
}

// Classify never fails; an utterance no rule recognizes is Unknown.
func (c *RuleBasedClassifier) Classify(utterance string) Match {
	f := c.extract(utterance)
	for _, r := range c.rules {
		if cls, ok := r.match(f); ok {
			return Match{Classification: cls, Rule: r.name}
		}
	}
	return Match{Classification: inquiry.Unknown{}, Rule: RuleNone}
}

func matchFlightStatus(f *features) (inquiry.Classification, bool) {
	if f.flightNumber == "" || !f.statusKW {
		return nil, false
	}
	return inquiry.FlightStatus{FlightNumber: f.flightNumber}, true
}

func matchFlightAnalytics(f *features) (inquiry.Classification, bool) {
	if f.distinct < 2 || !f.analyticsKW {
		return nil, false
	}
	origin, destination := assignEndpoints(f.mentions)
	return f.analytics(origin, destination), true
}

func matchAnalyticsFollowUp(f *features) (inquiry.Classification, bool) {
	switch {
	case len(f.mentions) > 0 && (f.analyticsKW || f.followUp):
	case len(f.mentions) == 0 && f.followUp && f.analyticsKW:
	default:
		return nil, false
	}
	origin, destination := assignEndpoints(f.mentions)
	return f.analytics(origin, destination), true
}

func (f *features) analytics(origin, destination string) inquiry.FlightAnalytics {
	return inquiry.FlightAnalytics{
		Origin:      origin,
		Destination: destination,
		Modifier:    f.modifier,
		Year:        f.year,
	}
}

func (c *RuleBasedClassifier) extract(utterance string) *features {
	lower := strings.ToLower(utterance)
	words := splitWords(utterance)
	mentions := c.findAirports(words)

	distinct := make(map[string]bool, len(mentions))
	for _, m := range mentions {
		distinct[m.code] = true
	}

	return &features{
		lower:        lower,
		flightNumber: findFlightNumber(strings.ToUpper(utterance)),
		mentions:     mentions,
		distinct:     len(distinct),
		statusKW:     statusKeywordRe.MatchString(lower),
		analyticsKW:  analyticsKeywordRe.MatchString(lower),
		followUp:     followUpRe.MatchString(lower),
		modifier:     ExtractModifier(lower),
		year:         c.extractYear(lower),
	}
}

// findFlightNumber returns the first normalized designator in upper.
func findFlightNumber(upper string) string {
	for _, m := range flightCandidateRe.FindAllStringSubmatch(upper, -1) {
		prefix, gap, digits := m[1], m[2], m[3]
		if gap != "" && notFlightPrefixes[prefix] {
			continue
		}
		return prefix + digits
	}
	return ""
}

// ExtractModifier picks the analytics sub-query named in the utterance. It
// returns "" when none is named so a follow-up can inherit the previous one.
func ExtractModifier(utterance string) inquiry.IntentModifier {
	lower := strings.ToLower(utterance)
	switch {
	case delayTrendRe.MatchString(lower):
		return inquiry.ModifierDelayTrend
	case onTimeRe.MatchString(lower):
		return inquiry.ModifierOnTime
	case dayOfWeekRe.MatchString(lower):
		return inquiry.ModifierDayOfWeek
	case cheapestRe.MatchString(lower):
		return inquiry.ModifierCheapest
	default:
		return ""
	}
}

func (c *RuleBasedClassifier) extractYear(lower string) int {
	if m := yearRe.FindStringSubmatch(lower); m != nil {
		year, _ := strconv.Atoi(m[1])
		return year
	}
	switch {
	case strings.Contains(lower, "last year"):
		return c.now().Year() - 1
	case strings.Contains(lower, "this year"):
		return c.now().Year()
	}
	return 0
}

// findAirports scans for spoken names (longest window first) and IATA codes.
func (c *RuleBasedClassifier) findAirports(words []word) []mention {
	var out []mention
	for i := 0; i < len(words); {
		matched := false
		for n := 3; n >= 1; n-- {
			if i+n > len(words) {
				continue
			}
			if code, ok := c.names[joinWords(words[i:i+n])]; ok {
				out = append(out, mention{code: code, role: roleBefore(words, i)})
				i += n
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		if w := words[i]; c.isCode(w) {
			out = append(out, mention{code: w.text, role: roleBefore(words, i)})
		}
		i++
	}
	return out
}

func (c *RuleBasedClassifier) isCode(w word) bool {
	if len(w.text) != 3 || !inquiry.ValidAirportCode(w.text) || notAirports[w.text] {
		return false
	}
	return knownCodes[w.text] || w.typedUpper
}

func roleBefore(words []word, i int) role {
	if i == 0 {
		return roleNone
	}
	switch words[i-1].text {
	case "FROM", "LEAVING", "DEPARTING":
		return roleFrom
	case "TO", "INTO", "TOWARDS":
		return roleTo
	}
	return roleNone
}

// assignEndpoints applies from/to phrasing first, then fills the remaining
// side from unmarked mentions in order. A lone unmarked airport is the origin.
func assignEndpoints(mentions []mention) (origin, destination string) {
	for _, m := range mentions {
		switch {
		case m.role == roleFrom && origin == "":
			origin = m.code
		case m.role == roleTo && destination == "":
			destination = m.code
		}
	}
	for _, m := range mentions {
		if m.role != roleNone {
			continue
		}
		switch {
		case origin == "" && m.code != destination:
			origin = m.code
		case destination == "" && m.code != origin:
			destination = m.code
		}
	}
	return origin, destination
}

func splitWords(s string) []word {
	s = strings.NewReplacer("'", "", "’", "").Replace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make([]word, len(fields))
	for i, f := range fields {
		upper := strings.ToUpper(f)
		words[i] = word{text: upper, typedUpper: f == upper}
	}
	return words
}

func tokenize(s string) []string {
	words := splitWords(s)
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.text
	}
	return out
}

func joinWords(words []word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}
