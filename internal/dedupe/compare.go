package dedupe

import (
	"fmt"
	"strings"

	"github.com/movebox/customerdupes/internal/models"
	"github.com/movebox/customerdupes/internal/similarity"
)

// MatchType is the confidence band of a pair or group.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchSimilar   MatchType = "similar"
	MatchPotential MatchType = "potential"
)

// ParseMatchType accepts the lowercase names used on the wire.
func ParseMatchType(s string) (MatchType, error) {
	switch MatchType(strings.ToLower(strings.TrimSpace(s))) {
	case MatchExact:
		return MatchExact, nil
	case MatchSimilar:
		return MatchSimilar, nil
	case MatchPotential:
		return MatchPotential, nil
	}
	return "", fmt.Errorf("unknown match type %q", s)
}

const (
	ReasonNameIdentical  = "Name identisch"
	ReasonNameSimilar    = "Name ähnlich"
	ReasonEmailIdentical = "E-Mail identisch"
	ReasonPhoneIdentical = "Telefon identisch"
	ReasonFromAddress    = "Abholadresse ähnlich"
	ReasonToAddress      = "Zieladresse ähnlich"
	ReasonMovingDate     = "Umzugsdatum identisch"
)

// Weights are the score contributions of each matching field.
type Weights struct {
	Name       float64 `yaml:"name"`
	Email      float64 `yaml:"email"`
	Phone      float64 `yaml:"phone"`
	Address    float64 `yaml:"address"` // per address field
	MovingDate float64 `yaml:"moving_date"`
}

// Config holds every tunable of the comparator and grouper. The defaults
// are hand-tuned and kept for compatibility with existing operator data.
type Config struct {
	Weights Weights `yaml:"weights"`

	NameIdentical     float64 `yaml:"name_identical"`
	NameSimilar       float64 `yaml:"name_similar"`
	NameSimilarFactor float64 `yaml:"name_similar_factor"`
	AddressSimilar    float64 `yaml:"address_similar"`

	ExactConfidence   float64 `yaml:"exact_confidence"`
	SimilarConfidence float64 `yaml:"similar_confidence"`
	StrongMatches     int     `yaml:"strong_matches"`

	// InclusionThreshold is the pairwise confidence a record must exceed
	// to join an anchor's group.
	InclusionThreshold float64 `yaml:"inclusion_threshold"`
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Name:       0.30,
			Email:      0.25,
			Phone:      0.25,
			Address:    0.10,
			MovingDate: 0.10,
		},
		NameIdentical:      0.9,
		NameSimilar:        0.7,
		NameSimilarFactor:  0.7,
		AddressSimilar:     0.8,
		ExactConfidence:    0.8,
		SimilarConfidence:  0.5,
		StrongMatches:      3,
		InclusionThreshold: 0.3,
	}
}

// Validate rejects values outside [0,1] and inverted classification bands.
func (c Config) Validate() error {
	fields := map[string]float64{
		"weights.name":        c.Weights.Name,
		"weights.email":       c.Weights.Email,
		"weights.phone":       c.Weights.Phone,
		"weights.address":     c.Weights.Address,
		"weights.moving_date": c.Weights.MovingDate,
		"name_identical":      c.NameIdentical,
		"name_similar":        c.NameSimilar,
		"name_similar_factor": c.NameSimilarFactor,
		"address_similar":     c.AddressSimilar,
		"exact_confidence":    c.ExactConfidence,
		"similar_confidence":  c.SimilarConfidence,
		"inclusion_threshold": c.InclusionThreshold,
	}
	for name, v := range fields {
		if v < 0 || v > 1 {
			return fmt.Errorf("dedupe.%s must be within [0,1], got %v", name, v)
		}
	}
	if c.NameSimilar > c.NameIdentical {
		return fmt.Errorf("dedupe.name_similar (%v) exceeds name_identical (%v)", c.NameSimilar, c.NameIdentical)
	}
	if c.SimilarConfidence > c.ExactConfidence {
		return fmt.Errorf("dedupe.similar_confidence (%v) exceeds exact_confidence (%v)", c.SimilarConfidence, c.ExactConfidence)
	}
	if c.StrongMatches < 1 {
		return fmt.Errorf("dedupe.strong_matches must be at least 1, got %d", c.StrongMatches)
	}
	return nil
}

// Comparison is the outcome of comparing two customers.
type Comparison struct {
	Confidence    float64   `json:"confidence"`
	MatchType     MatchType `json:"match_type"`
	Reasons       []string  `json:"reasons"`
	StrongMatches int       `json:"strong_matches"`
}

// Comparator scores customer pairs with a fixed Config.
type Comparator struct {
	cfg Config
}

func NewComparator(cfg Config) *Comparator {
	return &Comparator{cfg: cfg}
}

// Compare scores a pair of customers. Rules are independent and additive;
// any field missing on either side is skipped.
func (c *Comparator) Compare(c1, c2 models.Customer) Comparison {
	w := c.cfg.Weights
	var res Comparison

	nameSim := similarity.Ratio(c1.Name, c2.Name)
	if nameSim > c.cfg.NameIdentical {
		res.Confidence += w.Name
		res.StrongMatches++
		res.Reasons = append(res.Reasons, ReasonNameIdentical)
	} else if nameSim > c.cfg.NameSimilar {
		res.Confidence += w.Name * c.cfg.NameSimilarFactor
		res.Reasons = append(res.Reasons, ReasonNameSimilar)
	}

	if c1.Email != "" && c2.Email != "" && strings.EqualFold(c1.Email, c2.Email) {
		res.Confidence += w.Email
		res.StrongMatches++
		res.Reasons = append(res.Reasons, ReasonEmailIdentical)
	}

	if c1.Phone != "" && c2.Phone != "" && similarity.Digits(c1.Phone) == similarity.Digits(c2.Phone) {
		res.Confidence += w.Phone
		res.StrongMatches++
		res.Reasons = append(res.Reasons, ReasonPhoneIdentical)
	}

	if c1.FromAddress != "" && c2.FromAddress != "" &&
		similarity.Ratio(c1.FromAddress, c2.FromAddress) > c.cfg.AddressSimilar {
		res.Confidence += w.Address
		res.Reasons = append(res.Reasons, ReasonFromAddress)
	}

	if c1.ToAddress != "" && c2.ToAddress != "" &&
		similarity.Ratio(c1.ToAddress, c2.ToAddress) > c.cfg.AddressSimilar {
		res.Confidence += w.Address
		res.Reasons = append(res.Reasons, ReasonToAddress)
	}

	// Dates are compared verbatim, no parsing.
	if c1.MovingDate != "" && c1.MovingDate == c2.MovingDate {
		res.Confidence += w.MovingDate
		res.Reasons = append(res.Reasons, ReasonMovingDate)
	}

	res.MatchType = c.classify(res.Confidence, res.StrongMatches)
	return res
}

func (c *Comparator) classify(confidence float64, strong int) MatchType {
	switch {
	case strong >= c.cfg.StrongMatches || confidence > c.cfg.ExactConfidence:
		return MatchExact
	case confidence > c.cfg.SimilarConfidence:
		return MatchSimilar
	default:
		return MatchPotential
	}
}
