package engine

import (
	"strings"

	"github.com/brilliox/hunterpro/internal/funnel"
)

// chatSystemPrompt is the persona for plain chat requests.
const chatSystemPrompt = "أنت مساعد مبيعات محترف يتحدث العربية. " +
	"أجب بإيجاز وبأسلوب ودود ومهني، وركز على مساعدة العميل في الوصول لما يحتاجه."

// salesSystemPrompt is the persona for funnel reply generation.
const salesSystemPrompt = "أنت مندوب مبيعات محترف وخبير في الإقناع. " +
	"تتحدث العربية بلهجة ودودة وطبيعية. هدفك تحويل المحادثة نحو إتمام الصفقة " +
	"دون إلحاح. ردودك قصيرة ومباشرة مثل رسائل واتساب حقيقية."

// stageInstructions steer the generated reply toward the next funnel move.
var stageInstructions = map[funnel.Stage]string{
	funnel.StageBaitSent:    "العميل لم يرد بعد. اكتب رسالة افتتاحية جذابة تثير فضوله دون أن تبدو إعلانية.",
	funnel.StageReplied:     "العميل رد للتو. رحب به بحرارة واسأله سؤالاً مفتوحاً عن احتياجه.",
	funnel.StageInterested:  "العميل مهتم. قدم قيمة ملموسة: ميزة محددة أو نتيجة حققها عملاء آخرون، ثم اقترح خطوة تالية بسيطة.",
	funnel.StageNegotiating: "العميل يفاوض على السعر. أكد القيمة أولاً، وقدم خياراً مرناً دون خصم فوري كبير.",
	funnel.StageHot:         "العميل جاهز تقريباً. ادفعه بلطف لإتمام الصفقة الآن: عرض محدود أو خطوة حجز مباشرة.",
	funnel.StageClosed:      "الصفقة تمت. اشكره وأكد التفاصيل التالية واطلب تقييماً أو إحالة.",
	funnel.StageLost:        "العميل انسحب. اترك الباب مفتوحاً برسالة قصيرة مهذبة دون ضغط.",
}

// buildReplyPrompt assembles the funnel reply prompt: the lead's last
// message, the stage instruction, and any learned patterns as style hints.
func buildReplyPrompt(stage funnel.Stage, lastMessage string, hints []string) string {
	var b strings.Builder
	if inst, ok := stageInstructions[stage]; ok {
		b.WriteString(inst)
		b.WriteString("\n\n")
	}
	if lastMessage != "" {
		b.WriteString("آخر رسالة من العميل: ")
		b.WriteString(lastMessage)
		b.WriteString("\n\n")
	}
	if len(hints) > 0 {
		b.WriteString("ردود نجحت سابقاً في مواقف مشابهة، استلهم منها دون نسخها حرفياً:\n")
		for _, h := range hints {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("اكتب الرد المناسب الآن.")
	return b.String()
}
