package learning

import (
	"strings"

	"github.com/brilliox/hunterpro/internal/funnel"
)

// stageMarkers maps customer phrasing to the funnel stage it signals.
// Checked in order: stronger signals first so "هحجز" beats "ممكن", and
// lost before closed so "مش مهتم" never matches a closing keyword.
var stageMarkers = []struct {
	stage    funnel.Stage
	keywords []string
}{
	{funnel.StageLost, []string{"مش مهتم", "لا شكرا", "مش عايز"}},
	{funnel.StageClosed, []string{"هحجز", "خلاص", "اتفقنا", "done", "تم الحجز"}},
	{funnel.StageNegotiating, []string{"موافق", "تمام", "أوكي", "ماشي", "حاضر"}},
	{funnel.StageInterested, []string{"سعر", "كام", "ثمن", "تكلفة", "مبلغ"}},
	{funnel.StageReplied, []string{"طيب", "خلينا نشوف", "ممكن", "عايز اعرف"}},
}

// DetectStage guesses the funnel stage a customer message belongs to from
// its phrasing, defaulting to bait_sent.
func DetectStage(text string) funnel.Stage {
	lower := strings.ToLower(text)
	for _, m := range stageMarkers {
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return m.stage
			}
		}
	}
	return funnel.StageBaitSent
}

// defaultReplies are the stock stage replies used when no learned pattern
// is available and the provider chain cannot be reached.
var defaultReplies = map[funnel.Stage]string{
	funnel.StageBaitSent:    "تمام، أنا تحت أمرك. إيه اللي تحب تعرفه أكتر؟",
	funnel.StageReplied:     "جميل جداً! 😊 خليني أوضحلك التفاصيل...",
	funnel.StageInterested:  "ممتاز! 🔥 ده فعلاً أحسن وقت للحجز. عايز أبعتلك الكتالوج؟",
	funnel.StageNegotiating: "طبعاً نقدر نتفاهم. إيه اللي يناسبك بالظبط؟",
	funnel.StageHot:         "خلاص كده! 🎉 أمتى نقدر نعمل المعاينة؟",
	funnel.StageClosed:      "مبروك عليك! 🎊 هتستمتع جداً.",
	funnel.StageLost:        "تمام، لو احتجت أي حاجة في المستقبل أنا موجود.",
}

// DefaultReply returns the stock reply for a stage.
func DefaultReply(stage funnel.Stage) string {
	if reply, ok := defaultReplies[stage]; ok {
		return reply
	}
	return defaultReplies[funnel.StageReplied]
}
