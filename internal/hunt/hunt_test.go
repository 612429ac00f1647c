package hunt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brilliox/hunterpro/internal/provider"
)

func TestGoldenQueryContents(t *testing.T) {
	q := GoldenQuery("أنا مصور أفراح", "القاهرة", "social_media", "egypt")

	assert.Contains(t, q, "site:facebook.com")
	assert.Contains(t, q, `"محتاج مصور أفراح"`)
	assert.Contains(t, q, `"عايز مصور أفراح"`)
	assert.Contains(t, q, `"القاهرة"`)
	assert.Contains(t, q, `-site:youtube.com`)
	assert.Contains(t, q, `-"وظيفة"`)
	assert.Contains(t, q, `-"مطلوب"`)
	assert.Contains(t, q, `-"شركة"`)
	// egypt phone dork
	assert.Contains(t, q, "01")
}

func TestGoldenQueryUnknownCountryAndStrategyFallBack(t *testing.T) {
	q := GoldenQuery("سباك", "مدينة مجهولة", "warp", "atlantis")
	assert.Contains(t, q, "site:facebook.com")
	assert.Contains(t, q, `"محتاج سباك"`)
}

func TestGoldenQueryDetectsCountryFromCity(t *testing.T) {
	q := GoldenQuery("كهربائي", "الرياض", "social_media", "")
	// saudi phone dork prefix
	assert.Contains(t, q, "05")
}

func TestExtractService(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"أنا مصور أفراح", "مصور أفراح"},
		{"انا سباك", "سباك"},
		{"عندي مطعم", "مطعم"},
		{"مدرس رياضيات", "مدرس رياضيات"},
		{"  كوافير  ", "كوافير"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractService(tc.in))
	}
}

func TestDetectCountry(t *testing.T) {
	assert.Equal(t, "egypt", DetectCountry("القاهرة"))
	assert.Equal(t, "saudi", DetectCountry("الرياض"))
	assert.Equal(t, "uae", DetectCountry("دبي"))
	assert.Equal(t, "kuwait", DetectCountry("الكويت"))
	assert.Equal(t, "egypt", DetectCountry("باريس"))
}

func TestFallbackQueriesLoosen(t *testing.T) {
	queries := FallbackQueries("مصور", "القاهرة", "egypt")
	require.Len(t, queries, 5)
	for _, q := range queries {
		assert.Contains(t, q, "مصور")
	}
	// none carries the exclusion block of the golden query
	for _, q := range queries {
		assert.NotContains(t, q, "-site:youtube.com")
	}
}

func TestGeo(t *testing.T) {
	assert.Equal(t, "eg", Geo("egypt"))
	assert.Equal(t, "sa", Geo("saudi"))
	assert.Equal(t, "eg", Geo("atlantis"))
}

func TestExtractCandidatesEgyptPhone(t *testing.T) {
	results := []provider.SearchResult{
		{
			Title:   "محتاج مصور أفراح في القاهرة - فيسبوك",
			Link:    "https://facebook.com/post/1",
			Snippet: "محتاج مصور أفراح يوم الجمعة، للتواصل 01012345678",
		},
	}
	candidates := ExtractCandidates(results, "egypt")
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "01012345678", c.Phone)
	assert.Equal(t, "egypt", c.Country)
	assert.Equal(t, "with_phone", c.Type)
	assert.Equal(t, "https://facebook.com/post/1", c.Source)
	assert.Equal(t, "محتاج مصور أفراح في القاهرة", c.Name)
}

func TestExtractCandidatesSaudiPhoneWithSpacing(t *testing.T) {
	results := []provider.SearchResult{
		{
			Title:   "عايز كوافيرة بالرياض",
			Link:    "https://x.com/p/2",
			Snippet: "تواصلوا على 055 123 4567 أو واتساب",
		},
	}
	candidates := ExtractCandidates(results, "saudi")
	require.Len(t, candidates, 1)
	assert.Equal(t, "0551234567", candidates[0].Phone)
	assert.Equal(t, "saudi", candidates[0].Country)
}

func TestExtractCandidatesEmailOnly(t *testing.T) {
	results := []provider.SearchResult{
		{
			Title:   "أبحث عن مدرب لياقة",
			Link:    "https://site.example/3",
			Snippet: "ابحث عن مدرب، راسلوني على coach@example.com",
		},
	}
	candidates := ExtractCandidates(results, "egypt")
	require.Len(t, candidates, 1)
	assert.Empty(t, candidates[0].Phone)
	assert.Equal(t, "coach@example.com", candidates[0].Email)
	assert.Equal(t, "with_email", candidates[0].Type)
}

func TestExtractCandidatesIntentOnly(t *testing.T) {
	results := []provider.SearchResult{
		{
			Title:   "مين يعرف سباك شاطر؟",
			Link:    "https://facebook.com/post/4",
			Snippet: "محتاج سباك ضروري في مدينة نصر",
		},
	}
	candidates := ExtractCandidates(results, "egypt")
	require.Len(t, candidates, 1)
	assert.Equal(t, "potential", candidates[0].Type)
}

func TestExtractCandidatesSkipsNoise(t *testing.T) {
	results := []provider.SearchResult{
		{
			Title:   "شركة تصوير تعلن عن خدماتها",
			Link:    "https://ads.example/5",
			Snippet: "أفضل خدمات التصوير بأسعار منافسة",
		},
	}
	assert.Empty(t, ExtractCandidates(results, "egypt"))
}

func TestExtractCandidatesDedupsByPhone(t *testing.T) {
	results := []provider.SearchResult{
		{Title: "محتاج مصور", Link: "https://a/1", Snippet: "كلموني 01012345678"},
		{Title: "عايز مصور", Link: "https://a/2", Snippet: "رقمي 01012345678"},
	}
	candidates := ExtractCandidates(results, "egypt")
	require.Len(t, candidates, 2)
	assert.Equal(t, "01012345678", candidates[0].Phone)
	// second result keeps its intent but not the duplicate phone
	assert.Empty(t, candidates[1].Phone)
}

func TestDetectPhoneCountry(t *testing.T) {
	assert.Equal(t, "egypt", DetectPhoneCountry("01012345678"))
	assert.Equal(t, "egypt", DetectPhoneCountry("+2 010 1234 5678"))
	assert.Equal(t, "saudi", DetectPhoneCountry("0551234567"))
	assert.Equal(t, "saudi", DetectPhoneCountry("+966551234567"))
	assert.Equal(t, "uae", DetectPhoneCountry("+971501234567"))
}
