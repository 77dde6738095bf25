package core

import (
	"regexp"
	"strings"
)

type Intent int

const (
	IntentGeneralChat Intent = iota
	IntentGreeting
	IntentProductSearch
	IntentPriceInquiry
	IntentOrderInquiry
	IntentDeliveryInquiry
	IntentReturnPolicy
	IntentSizeChart
	IntentImageRequest
	IntentTrackOrder
	IntentBargaining
)

var intentNames = map[Intent]string{
	IntentGeneralChat:     "general_chat",
	IntentGreeting:        "greeting",
	IntentProductSearch:   "product_search",
	IntentPriceInquiry:    "price_inquiry",
	IntentOrderInquiry:    "order_inquiry",
	IntentDeliveryInquiry: "delivery_inquiry",
	IntentReturnPolicy:    "return_policy",
	IntentSizeChart:       "size_chart",
	IntentImageRequest:    "image_request",
	IntentTrackOrder:      "track_order",
	IntentBargaining:      "bargaining",
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return "unknown"
}

// intentPriority breaks ties between intents with equal scores; earlier wins.
var intentPriority = []Intent{
	IntentGreeting,
	IntentProductSearch,
	IntentPriceInquiry,
	IntentOrderInquiry,
	IntentDeliveryInquiry,
	IntentReturnPolicy,
	IntentSizeChart,
	IntentImageRequest,
	IntentTrackOrder,
	IntentBargaining,
	IntentGeneralChat,
}

// Scores are kept in hundredths so ties compare exactly.
const (
	keywordWeight = 20
	phraseWeight  = 30
	imagePrior    = 90
	noMatchScore  = 10
	maxScore      = 100
)

type intentRule struct {
	intent Intent
	weight int
	re     *regexp.Regexp
}

// A token boundary that understands Bengali: \b in RE2 is ASCII-only and
// would split words at vowel signs.
func boundedPattern(alts string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{M}\p{N}])(?:` + alts + `)(?:[^\p{L}\p{M}\p{N}]|$)`)
}

func keywords(intent Intent, alts string) intentRule {
	return intentRule{intent: intent, weight: keywordWeight, re: boundedPattern(alts)}
}

func phrases(intent Intent, alts string) intentRule {
	return intentRule{intent: intent, weight: phraseWeight, re: boundedPattern(alts)}
}

// Each rule contributes its weight once when any of its alternatives matches.
var defaultIntentRules = []intentRule{
	phrases(IntentGreeting, `আসসালামু.*আলাইকুম|assalamu.*alaikum|কেমন\s+আছেন|how\s+are\s+you`),
	keywords(IntentGreeting, `সালাম|salam|হাই|hi|হ্যালো|hello|হেলো|hey`),

	keywords(IntentProductSearch, `জুতা|shoe|shoes|স্যান্ডেল|sandal|sandals|বুট|boot|boots|লোফার|loafer|loafers|স্নিকার|sneaker|sneakers`),
	keywords(IntentProductSearch, `দেখান|show|available|কি আছে`),
	phrases(IntentProductSearch, `what.*available|which.*product|show.*me|কোন.*পণ্য`),
	keywords(IntentProductSearch, `ব্র্যান্ড|brand|কোয়ালিটি|quality|কালার|color|colour|মডেল|model|স্টাইল|style|ডিজাইন|design|নতুন|new|latest`),

	keywords(IntentPriceInquiry, `দাম|price|মূল্য|cost|কত|টাকা|taka|pp`),
	phrases(IntentPriceInquiry, `how.*much|price.*please|দাম.*জানান|মূল্য.*বলুন|কত.*টাকা|দাম.*কত`),

	keywords(IntentOrderInquiry, `অর্ডার|order|buy|purchase|কিনব|কিনতে|পেমেন্ট|payment|pay|কনফার্ম|confirm`),
	phrases(IntentOrderInquiry, `নিতে.*চাই|want.*to.*buy|how.*to.*buy|order.*process|confirm.*order|অর্ডার.*করতে`),

	keywords(IntentDeliveryInquiry, `ডেলিভারি|delivery|courier|কুরিয়ার|shipping`),
	phrases(IntentDeliveryInquiry, `কখন.*পাব|when.*get|how.*long|কতদিনে|delivery.*charge|ডেলিভারি.*চার্জ`),

	keywords(IntentReturnPolicy, `রিটার্ন|return|ফেরত|exchange|এক্সচেঞ্জ|refund|রিফান্ড`),
	keywords(IntentReturnPolicy, `পলিসি|policy|নিয়ম|rule|শর্ত|condition`),
	phrases(IntentReturnPolicy, `পছন্দ.*না|don.*like|money.*back|টাকা.*ফেরত`),

	phrases(IntentSizeChart, `সাইজ.*চার্ট|size.*chart|সাইজ.*টেবিল|size.*table|কোন.*সাইজ|which.*size|size.*fit|সাইজ.*জানান|tell.*size`),
	keywords(IntentSizeChart, `ফিট|fit|বাটা|bata|এপেক্স|apex`),

	keywords(IntentImageRequest, `ছবি|image|picture|photo|চিত্র`),
	phrases(IntentImageRequest, `show.*image|show.*picture|ছবি.*দেখান|চোবি.*দেখান|কেমন.*দেখায়|look.*like`),

	keywords(IntentTrackOrder, `ট্র্যাক|track|tracking|status`),
	phrases(IntentTrackOrder, `অর্ডার.*কোথায়|where.*order|order.*track|অর্ডার.*ট্র্যাক|কোন.*খবর`),

	phrases(IntentBargaining, `দাম.*কমানো|reduce.*price|কম.*দাম|less.*price|একটু.*কমানো|little.*less|কিছু.*কমানো|some.*discount|দাম.*বেশি|price.*high|কমানো.*যায়|can.*reduce|last.*price`),
	keywords(IntentBargaining, `অফার|offer|ডিসকাউন্ট|discount|সেল|sale|কমানো|কমাবেন|দরদাম`),
}

// Classifier assigns one intent per utterance from a declarative rule table.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	rules []intentRule
}

func NewClassifier() *Classifier {
	return &Classifier{rules: defaultIntentRules}
}

// Classify returns the best intent and its confidence in [0,1]. An attached
// image seeds product search with a strong prior before text is scored.
func (c *Classifier) Classify(utterance string, hasImages bool) (Intent, float64) {
	text := strings.TrimSpace(utterance)
	if text == "" && !hasImages {
		return IntentGeneralChat, 0
	}

	scores := make(map[Intent]int)
	if hasImages {
		scores[IntentProductSearch] = imagePrior
	}
	if text != "" {
		for _, r := range c.rules {
			if r.re.MatchString(text) {
				scores[r.intent] += r.weight
			}
		}
	}
	if len(scores) == 0 {
		return IntentGeneralChat, float64(noMatchScore) / 100
	}

	best, bestScore := IntentGeneralChat, -1
	for _, intent := range intentPriority {
		s, ok := scores[intent]
		if !ok {
			continue
		}
		if s > maxScore {
			s = maxScore
		}
		if s > bestScore {
			best, bestScore = intent, s
		}
	}
	return best, float64(bestScore) / 100
}

// ShouldSearchProducts reports whether an intent at this confidence warrants
// a catalog lookup. Policy intents only search when the match is strong.
func ShouldSearchProducts(intent Intent, confidence float64) bool {
	switch intent {
	case IntentProductSearch, IntentPriceInquiry, IntentOrderInquiry, IntentImageRequest:
		return confidence > 0.3
	case IntentDeliveryInquiry, IntentReturnPolicy, IntentSizeChart:
		return confidence > 0.7
	default:
		return false
	}
}
