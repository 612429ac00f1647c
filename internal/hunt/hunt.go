// Package hunt builds the "golden query" search dorks that turn a user's
// service description into a lead-hunting search, and extracts contactable
// leads from the raw results.
package hunt

import (
	"fmt"
	"strings"
)

// CountryConfig holds the per-market search building blocks: phone-number
// dork patterns, the local platforms worth searching, and the cities used
// for country detection.
type CountryConfig struct {
	Code          string   `yaml:"code"`
	Name          string   `yaml:"name"`
	PhonePatterns string   `yaml:"phone_patterns"`
	Sites         string   `yaml:"sites"`
	Cities        []string `yaml:"cities"`
	Geo           string   `yaml:"geo"` // search engine gl parameter
}

// Strategy is one hunting approach: where to look and which intent keywords
// mark someone as a potential customer rather than a competitor.
type Strategy struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Sites       string   `yaml:"sites"`
	Keywords    []string `yaml:"keywords"`
	Description string   `yaml:"description"`
}

// Countries is the built-in market catalogue.
var Countries = map[string]CountryConfig{
	"egypt": {
		Code:          "egypt",
		Name:          "مصر",
		PhonePatterns: `("010" OR "011" OR "012" OR "015")`,
		Sites:         "site:olx.com.eg OR site:facebook.com OR site:instagram.com",
		Cities:        []string{"القاهرة", "الإسكندرية", "الجيزة", "المنصورة", "طنطا", "أسوان", "الأقصر", "شرم الشيخ"},
		Geo:           "eg",
	},
	"saudi": {
		Code:          "saudi",
		Name:          "السعودية",
		PhonePatterns: `("05" OR "9665" OR "966")`,
		Sites:         "site:opensooq.com OR site:facebook.com OR site:instagram.com OR site:linkedin.com/in",
		Cities:        []string{"الرياض", "جدة", "مكة", "المدينة", "الدمام", "الخبر", "الطائف", "تبوك", "أبها"},
		Geo:           "sa",
	},
	"uae": {
		Code:          "uae",
		Name:          "الإمارات",
		PhonePatterns: `("050" OR "055" OR "056" OR "9714")`,
		Sites:         "site:dubizzle.com OR site:facebook.com OR site:instagram.com OR site:linkedin.com/in",
		Cities:        []string{"دبي", "أبوظبي", "الشارقة", "عجمان", "العين", "رأس الخيمة"},
		Geo:           "ae",
	},
	"kuwait": {
		Code:          "kuwait",
		Name:          "الكويت",
		PhonePatterns: `("965" OR "9" OR "5" OR "6")`,
		Sites:         "site:opensooq.com OR site:facebook.com OR site:instagram.com",
		Cities:        []string{"الكويت", "حولي", "الفروانية", "الأحمدي", "الجهراء"},
		Geo:           "kw",
	},
}

// Strategies is the built-in hunting strategy catalogue.
var Strategies = map[string]Strategy{
	"social_media": {
		ID:          "social_media",
		Name:        "سوشيال ميديا",
		Sites:       "(site:facebook.com OR site:instagram.com OR site:twitter.com OR site:linkedin.com/in)",
		Keywords:    []string{"محتاج", "عايز", "ابحث عن", "مين يعرف", "دلوني على"},
		Description: "البحث في فيسبوك وإنستجرام وتويتر ولينكدإن",
	},
	"local_platforms": {
		ID:          "local_platforms",
		Name:        "منصات محلية",
		Sites:       "(site:olx.com.eg OR site:opensooq.com OR site:dubizzle.com)",
		Keywords:    []string{"للتواصل", "اتصل", "واتساب", "رقم"},
		Description: "البحث في OLX وOpenSooq وDubizzle",
	},
	"events": {
		ID:          "events",
		Name:        "مناسبات وأحداث",
		Sites:       "(site:facebook.com OR site:instagram.com)",
		Keywords:    []string{"تهاني", "تهنئة", "مبروك", "الف مبروك", "عقبال"},
		Description: "البحث عن أرقام من التهاني والمناسبات",
	},
	"contact_pages": {
		ID:          "contact_pages",
		Name:        "صفحات التواصل",
		Sites:       `("contact us" OR "اتصل بنا" OR "تواصل معنا")`,
		Keywords:    []string{"هاتف", "موبايل", "واتس", "للاستفسار"},
		Description: "البحث في صفحات اتصل بنا",
	},
	"competitor_monitor": {
		ID:          "competitor_monitor",
		Name:        "مراقبة المنافسين",
		Sites:       "(site:facebook.com OR site:instagram.com)",
		Keywords:    []string{"تعليق", "رأيكم", "تجربتكم", "حد جرب"},
		Description: "مراقبة تعليقات وآراء العملاء",
	},
}

// DetectCountry guesses the market from a city name, defaulting to egypt.
func DetectCountry(city string) string {
	for code, cfg := range Countries {
		for _, c := range cfg.Cities {
			if strings.Contains(city, c) || strings.Contains(c, city) {
				return code
			}
		}
	}
	switch {
	case containsAny(city, "الرياض", "جدة", "مكة", "السعودية"):
		return "saudi"
	case containsAny(city, "دبي", "أبوظبي", "الشارقة", "الإمارات"):
		return "uae"
	case containsAny(city, "الكويت", "حولي"):
		return "kuwait"
	}
	return "egypt"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ExtractService strips "I am a ..." phrasing so the query targets the
// user's profession, not the sentence around it.
func ExtractService(query string) string {
	prefixes := []string{"أنا ", "انا ", "أعمل كـ ", "اعمل ك", "عندي ", "لدي "}
	for _, prefix := range prefixes {
		if strings.HasPrefix(query, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(query, prefix))
		}
	}
	return strings.TrimSpace(query)
}

// GoldenQuery builds the single optimized search dork for a service in a
// city: sites + customer-intent keywords + location + phone patterns +
// exclusions. The query finds people looking FOR the service, never other
// providers of it.
func GoldenQuery(query, city, strategy, country string) string {
	if country == "" {
		country = DetectCountry(city)
	}
	countryCfg, ok := Countries[country]
	if !ok {
		countryCfg = Countries["egypt"]
	}
	strategyCfg, ok := Strategies[strategy]
	if !ok {
		strategyCfg = Strategies["social_media"]
	}

	service := ExtractService(query)
	customerKeywords := []string{
		fmt.Sprintf("محتاج %s", service),
		fmt.Sprintf("عايز %s", service),
		fmt.Sprintf("مين يعرف %s", service),
		fmt.Sprintf("دلوني على %s", service),
	}
	quoted := make([]string, len(customerKeywords))
	for i, kw := range customerKeywords {
		quoted[i] = fmt.Sprintf("%q", kw)
	}

	return fmt.Sprintf(`%s (%s) "%s" %s -site:youtube.com -"وظيفة" -"مطلوب" -"شركة"`,
		strategyCfg.Sites, strings.Join(quoted, " OR "), city, countryCfg.PhonePatterns)
}

// FallbackQueries returns looser queries to try when the golden query
// produces nothing, still aimed at customers rather than providers.
func FallbackQueries(query, city, country string) []string {
	if country == "" {
		country = DetectCountry(city)
	}
	countryCfg, ok := Countries[country]
	if !ok {
		countryCfg = Countries["egypt"]
	}
	service := ExtractService(query)

	return []string{
		fmt.Sprintf(`site:facebook.com ("محتاج %s" OR "عايز %s" OR "مين يعرف %s") "%s" %s`, service, service, service, city, countryCfg.PhonePatterns),
		fmt.Sprintf(`site:facebook.com ("دلوني على %s" OR "يا ريت حد يرشحلي %s") "%s"`, service, service, city),
		fmt.Sprintf(`site:instagram.com ("محتاج %s" OR "ابحث عن %s") %s %s`, service, service, city, countryCfg.PhonePatterns),
		fmt.Sprintf(`"حد جرب %s" OR "تجربتكم مع %s" %s %s`, service, service, city, countryCfg.PhonePatterns),
		fmt.Sprintf(`("محتاج %s ضروري" OR "عايز %s كويس") %s`, service, service, city),
	}
}

// Geo returns the search engine country parameter for a market.
func Geo(country string) string {
	if cfg, ok := Countries[country]; ok {
		return cfg.Geo
	}
	return "eg"
}
