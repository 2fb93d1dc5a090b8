package sentiment

import (
	"strings"
	"unicode"
)

// Analyzer scores text polarity in [-1, 1]
type Analyzer interface {
	Polarity(text string) float64
}

// Lexicon is a phrase-weighted polarity analyzer for financial headlines in
// Vietnamese and English. Longer phrases win over their prefixes, a negator
// within the two preceding tokens flips a phrase's sign, and the polarity of
// a text is the mean weight of its scored phrases.
type Lexicon struct {
	terms     map[string]float64
	negators  map[string]bool
	maxPhrase int
}

// NewLexicon creates a lexicon with the built-in financial vocabulary
func NewLexicon() *Lexicon {
	return NewLexiconFrom(defaultTerms, defaultNegators)
}

// NewLexiconFrom creates a lexicon from custom terms and negators.
// Terms with weight 0 are recognised but do not count towards the mean.
func NewLexiconFrom(terms map[string]float64, negators []string) *Lexicon {
	l := &Lexicon{
		terms:     make(map[string]float64, len(terms)),
		negators:  make(map[string]bool, len(negators)),
		maxPhrase: 1,
	}
	for phrase, w := range terms {
		key := strings.Join(tokenize(phrase), " ")
		l.terms[key] = w
		if n := len(strings.Fields(key)); n > l.maxPhrase {
			l.maxPhrase = n
		}
	}
	for _, n := range negators {
		l.negators[strings.ToLower(n)] = true
	}
	return l
}

// Polarity returns the mean phrase weight of text, or 0 when nothing matches
func (l *Lexicon) Polarity(text string) float64 {
	tokens := tokenize(text)

	var sum float64
	var count int
	for i := 0; i < len(tokens); {
		size, weight, ok := l.match(tokens, i)
		if !ok {
			i++
			continue
		}
		if weight != 0 {
			if l.negated(tokens, i) {
				weight = -weight
			}
			sum += weight
			count++
		}
		i += size
	}

	if count == 0 {
		return 0
	}
	return clamp(sum/float64(count), -1, 1)
}

func (l *Lexicon) match(tokens []string, i int) (int, float64, bool) {
	for size := l.maxPhrase; size >= 1; size-- {
		if i+size > len(tokens) {
			continue
		}
		if w, ok := l.terms[strings.Join(tokens[i:i+size], " ")]; ok {
			return size, w, true
		}
	}
	return 0, 0, false
}

func (l *Lexicon) negated(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-2; j-- {
		if l.negators[tokens[j]] {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var defaultNegators = []string{"not", "no", "never", "without", "không", "chưa", "chẳng"}

var defaultTerms = map[string]float64{
	// Vietnamese, positive
	"tăng":          0.5,
	"tăng trưởng":   0.8,
	"tăng mạnh":     1.0,
	"tăng trần":     1.0,
	"lãi":           0.6,
	"lãi lớn":       1.0,
	"lợi nhuận":     0.6,
	"kỷ lục":        0.8,
	"bứt phá":       1.0,
	"khởi sắc":      0.8,
	"tích cực":      0.8,
	"vượt kế hoạch": 1.0,
	"cổ tức":        0.5,
	"mua ròng":      0.6,
	"hồi phục":      0.6,
	"phục hồi":      0.6,
	"đột phá":       0.8,
	"triển vọng":    0.5,
	"hưởng lợi":     0.6,
	"khả quan":      0.7,
	"thành công":    0.6,
	// Vietnamese, negative
	"giảm":        -0.5,
	"giảm mạnh":   -1.0,
	"giảm sàn":    -1.0,
	"lỗ":          -0.8,
	"thua lỗ":     -1.0,
	"lao dốc":     -1.0,
	"sụt giảm":    -0.8,
	"tiêu cực":    -0.8,
	"bán ròng":    -0.6,
	"bán tháo":    -1.0,
	"nợ xấu":      -0.8,
	"xử phạt":     -0.8,
	"vi phạm":     -0.8,
	"khó khăn":    -0.6,
	"rủi ro":      -0.5,
	"đình chỉ":    -0.8,
	"cảnh báo":    -0.6,
	"khủng hoảng": -1.0,
	"thấp nhất":   -0.5,
	// Vietnamese, neutral phrases that contain scored words
	"lãi suất":      0,
	"giảm lãi suất": 0.3,
	"tăng lãi suất": -0.3,
	// English, positive
	"growth":     0.8,
	"profit":     0.6,
	"profits":    0.6,
	"gain":       0.5,
	"gains":      0.5,
	"rise":       0.5,
	"rises":      0.5,
	"surge":      1.0,
	"surges":     1.0,
	"record":     0.6,
	"beat":       0.7,
	"beats":      0.7,
	"strong":     0.7,
	"positive":   0.8,
	"upgrade":    0.8,
	"dividend":   0.5,
	"rally":      0.8,
	"recovery":   0.6,
	"recover":    0.6,
	"outperform": 0.8,
	"good":       0.7,
	// English, negative
	"loss":          -0.8,
	"losses":        -0.8,
	"decline":       -0.6,
	"declines":      -0.6,
	"fall":          -0.5,
	"falls":         -0.5,
	"drop":          -0.5,
	"drops":         -0.5,
	"plunge":        -1.0,
	"plunges":       -1.0,
	"weak":          -0.7,
	"negative":      -0.8,
	"downgrade":     -0.8,
	"fined":         -0.8,
	"violation":     -0.8,
	"risk":          -0.5,
	"crisis":        -1.0,
	"sell off":      -1.0,
	"bad debt":      -0.8,
	"bad":           -0.7,
	"interest rate": 0,
}
