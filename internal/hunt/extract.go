package hunt

import (
	"regexp"
	"strings"

	"github.com/brilliox/hunterpro/internal/provider"
)

// Candidate is a contactable lead pulled out of raw search results, before
// it is persisted as a Lead.
type Candidate struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Source  string `json:"source"`
	Notes   string `json:"notes"`
	Country string `json:"country"`
	// Type is "with_phone", "with_email" or "potential" (intent only).
	Type string `json:"type"`
}

var phonePatternsByCountry = map[string][]*regexp.Regexp{
	"egypt": compileAll(
		`(?:\+?2)?01[0125]\d{8}`,
		`01[0125]\d{8}`,
		`01[0125][-\s]?\d{4}[-\s]?\d{4}`,
	),
	"saudi": compileAll(
		`(?:\+?966)?0?5[0-9]\d{7}`,
		`05[0-9]\d{7}`,
		`05[0-9][-\s]?\d{3}[-\s]?\d{4}`,
		`9665[0-9]\d{7}`,
	),
	"uae": compileAll(
		`(?:\+?971)?0?5[0-9]\d{7}`,
		`05[0-9]\d{7}`,
		`9715[0-9]\d{7}`,
	),
	"kuwait": compileAll(
		`(?:\+?965)?[569]\d{7}`,
		`[569]\d{7}`,
	),
	"all": compileAll(
		`(?:\+?2)?01[0125]\d{8}`,
		`01[0125]\d{8}`,
		`(?:\+?966)?0?5[0-9]\d{7}`,
		`05[0-9]\d{7}`,
		`(?:\+?971)?0?5[0-9]\d{7}`,
		`(?:\+?965)?[569]\d{7}`,
	),
}

var (
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneCleaner    = regexp.MustCompile(`[\s\-]`)
	titleTrailerCut = regexp.MustCompile(`\s*[-|–]\s*.*`)
)

// customerIntentKeywords mark a result as a potential customer even when no
// phone or email was found in the snippet.
var customerIntentKeywords = []string{
	"محتاج", "عايز", "ابحث عن", "مين يعرف", "دلوني على",
	"يا ريت حد", "حد يرشحلي", "حد يعرف", "تجربتكم مع", "حد جرب",
}

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

// ExtractCandidates pulls lead candidates out of search results for a
// market. Results showing customer intent are kept even without a phone
// number; duplicates by phone or URL are dropped.
func ExtractCandidates(results []provider.SearchResult, country string) []Candidate {
	patterns, ok := phonePatternsByCountry[country]
	if !ok {
		patterns = phonePatternsByCountry["all"]
	} else if country != "all" {
		patterns = append(patterns, phonePatternsByCountry["all"]...)
	}

	seenPhones := make(map[string]bool)
	seenURLs := make(map[string]bool)
	var candidates []Candidate

	for _, result := range results {
		text := result.Title + " " + result.Snippet

		var phones []string
		for _, pattern := range patterns {
			for _, match := range pattern.FindAllString(text, -1) {
				clean := phoneCleaner.ReplaceAllString(match, "")
				if len(clean) >= 8 && !seenPhones[clean] {
					phones = append(phones, clean)
					seenPhones[clean] = true
				}
			}
		}
		emails := emailPattern.FindAllString(text, -1)
		hasIntent := false
		for _, kw := range customerIntentKeywords {
			if strings.Contains(text, kw) {
				hasIntent = true
				break
			}
		}

		include := len(phones) > 0 || len(emails) > 0 || (hasIntent && !seenURLs[result.Link])
		if !include {
			continue
		}

		name := titleTrailerCut.ReplaceAllString(result.Title, "")
		if name == "" {
			name = "عميل محتمل"
		}
		if r := []rune(name); len(r) > 60 {
			name = string(r[:60])
		}

		c := Candidate{
			Name:   name,
			Source: result.Link,
			Notes:  truncateRunes(result.Snippet, 300),
			Type:   "potential",
		}
		if len(phones) > 0 {
			c.Phone = phones[0]
			c.Country = DetectPhoneCountry(phones[0])
			c.Type = "with_phone"
		} else {
			c.Country = country
			if len(emails) > 0 {
				c.Type = "with_email"
			}
		}
		if len(emails) > 0 {
			c.Email = emails[0]
		}

		candidates = append(candidates, c)
		seenURLs[result.Link] = true
	}
	return candidates
}

// DetectPhoneCountry guesses the market from a phone number's prefix.
func DetectPhoneCountry(phone string) string {
	clean := strings.NewReplacer(" ", "", "-", "", "+", "").Replace(phone)
	switch {
	case strings.HasPrefix(clean, "20") || strings.HasPrefix(clean, "01"):
		return "egypt"
	case strings.HasPrefix(clean, "966") || strings.HasPrefix(clean, "05"):
		return "saudi"
	case strings.HasPrefix(clean, "971"):
		return "uae"
	case strings.HasPrefix(clean, "965"):
		return "kuwait"
	}
	return "unknown"
}

func truncateRunes(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
