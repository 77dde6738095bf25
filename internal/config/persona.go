package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Replies holds the canned answers that never reach the generative model.
type Replies struct {
	Greeting            string `yaml:"greeting"`
	LookAlike           string `yaml:"look_alike"`
	NeedPhoto           string `yaml:"need_photo"`
	SizePrompt          string `yaml:"size_prompt"`
	OrderForm           string `yaml:"order_form"`
	SearchUnavailable   string `yaml:"search_unavailable"`
	Apology             string `yaml:"apology"`
	EmptyMessage        string `yaml:"empty_message"`
	ImageDownloadFailed string `yaml:"image_download_failed"`
}

// Policies are the static policy blocks, charge tables included.
type Policies struct {
	Delivery  string `yaml:"delivery"`
	Return    string `yaml:"return"`
	SizeChart string `yaml:"size_chart"`
}

// Persona is the merchant's business copy: tone, canned replies, policy
// text, trigger phrases and the generative prompt template.
type Persona struct {
	ShopName       string   `yaml:"shop_name"`
	Tone           string   `yaml:"tone"`
	Language       string   `yaml:"language"`
	ImageOnlyQuery string   `yaml:"image_only_query"`
	Replies        Replies  `yaml:"replies"`
	Policies       Policies `yaml:"policies"`

	LookAlikePhrases []string `yaml:"look_alike_phrases"`
	ShowAllPhrases   []string `yaml:"show_all_phrases"`
	JustOnePhrases   []string `yaml:"just_one_phrases"`
	SizeMarkers      []string `yaml:"size_markers"`

	PromptTemplate string `yaml:"prompt_template"`
}

// LoadPersona reads a persona file. A missing file yields the built-in
// defaults; keys present in the file override the defaults.
func LoadPersona(path string) (*Persona, error) {
	p := DefaultPersona()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}
	return p, nil
}

func DefaultPersona() *Persona {
	return &Persona{
		ShopName:       "Smart Shoe Shop",
		Tone:           "friendly, persuasive and polite",
		Language:       "Bengali",
		ImageOnlyQuery: "Provide the name, description, and price of the product in the uploaded image.",
		Replies: Replies{
			Greeting:            "আসসালামু আলাইকুম! আমাদের শপে আপনাকে স্বাগতম। আপনি কোন পণ্যটি খুঁজছেন? পণ্যের ছবি বা কোড পাঠালে আমরা দ্রুত দাম ও বিস্তারিত জানাতে পারব।",
			LookAlike:           "হ্যাঁ, পণ্য একদম হুবহু ছবির মতো হবে! আমরা নিশ্চিত করি যে আপনি ছবিতে যা দেখছেন, ঠিক তেমনটাই পাবেন।",
			NeedPhoto:           "অনুগ্রহ করে পণ্যের ছবি অথবা কোডটি দিন, তাহলে আমরা আপনাকে সঠিক দাম জানাতে পারব।",
			SizePrompt:          "পণ্যটি একাধিক সাইজে পাওয়া যাচ্ছে। অনুগ্রহ করে আপনার সাইজটি জানান।",
			OrderForm:           "অনুগ্রহ করে আপনার অর্ডার সম্পূর্ণ করতে নিচের তথ্য দিন:\nআপনার নাম:\nআপনার ঠিকানা:\nআপনার ফোন নাম্বার:",
			SearchUnavailable:   "দুঃখিত, এই মুহূর্তে আমাদের পণ্য খোঁজার ব্যবস্থা সাময়িকভাবে বন্ধ আছে। অনুগ্রহ করে কিছুক্ষণ পর আবার চেষ্টা করুন।",
			Apology:             "দুঃখিত, এই মুহূর্তে উত্তর দিতে সমস্যা হচ্ছে। অনুগ্রহ করে একটু পরে আবার চেষ্টা করুন।",
			EmptyMessage:        "অনুগ্রহ করে আপনার প্রশ্ন লিখুন অথবা পণ্যের ছবি পাঠান।",
			ImageDownloadFailed: "দুঃখিত, আপনার পাঠানো ছবিটি আমরা খুলতে পারিনি। অনুগ্রহ করে আবার পাঠান।",
		},
		Policies: Policies{
			Delivery: "আপনি যদি ঢাকায় থাকেন তবে ১ দিনের মধ্যে পণ্য পাবেন, অন্যথায় ২ দিনের মধ্যে।\n" +
				"ডেলিভারি চার্জ:\n" +
				"ঢাকার ভিতরে: ৮০ টাকা\n" +
				"ঢাকার বাইরে: ১৫০ টাকা",
			Return: "পণ্য হাতে পাওয়ার পর পছন্দ না হলে ডেলিভারি ম্যানের সামনেই ফেরত দিতে পারবেন, সেক্ষেত্রে শুধু ডেলিভারি চার্জ দিতে হবে।\n" +
				"সাইজ না মিললে ৩ দিনের মধ্যে এক্সচেঞ্জ করা যাবে।",
			SizeChart: "সাইজ চার্ট (পায়ের দৈর্ঘ্য):\n" +
				"৩৯: ২৪.৫ সেমি\n" +
				"৪০: ২৫ সেমি\n" +
				"৪১: ২৬ সেমি\n" +
				"৪২: ২৬.৫ সেমি\n" +
				"৪৩: ২৭.৫ সেমি\n" +
				"৪৪: ২৮ সেমি",
		},
		LookAlikePhrases: []string{"hubohu", "exactly like", "same as picture", "ছবির মত", "হুবহু"},
		ShowAllPhrases:   []string{"show all", "all products", "সব দেখান", "সবগুলো", "সব পণ্য"},
		JustOnePhrases:   []string{"just this", "only this", "only one", "শুধু এটা", "শুধু এইটা", "এটাই"},
		SizeMarkers:      []string{"size:", "sizes:", "সাইজ:", "সাইজ -"},
		PromptTemplate:   defaultPromptTemplate,
	}
}

const defaultPromptTemplate = `You are a sales assistant for {{.ShopName}}. Your tone is {{.Tone}}.
Always reply in {{.Language}}.

Rules:
- Use only the product facts listed below. Never invent a product, price or link.
- Keep the product name, price and link exactly as written.
- Write prices as a number followed by "টাকা".
- Never offer a price below what is allowed; do not mention internal costs.
- Keep the reply short and persuasive, and end with a question that moves the customer toward an order.
{{if .Policy}}
Policy:
{{.Policy}}
{{end}}{{if .Context}}
{{.Context}}
{{end}}{{if .History}}
Conversation so far:
{{range .History}}Customer: {{.User}}
Assistant: {{.Bot}}
{{end}}{{end}}
Customer: {{.Utterance}}
Assistant:`
