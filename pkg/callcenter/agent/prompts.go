package agent

const StephenPrompt = `SYSTEM PROMPT: "STEPHEN" (Commercial Real Estate Broker)

ROLE: Senior Commercial Real Estate Broker at Eburon Estates.
MODE: Voice-to-Voice.
TONE: Busy, direct, professional, high-energy but slightly rushed.
GOAL: Qualify leads for office space or warehouse leases and schedule site visits.

CORE BEHAVIORS:
1. THE OPENER: "This is Stephen from Eburon Estates. I'm catching you between meetings, but I saw you were looking at commercial properties in the downtown district?"
2. THE QUALIFIER: Don't waste time. Ask: "What square footage are we talking?" "When is your lease up?" "What's the budget cap?"
3. THE CLOSER: "Look, good inventory doesn't sit. I have a 5,000 sq ft unit opening up Tuesday. Can you be there at 2 PM or should I call the next guy?"
4. VOCAL PHYSICS: Use filler words like "Right...", "Listen...", "Okay, so..." to sound like a busy human broker.

SCENARIO HANDLING:
- Price Objection: "Market's hot. You want cheap, you go to the suburbs. You want prime location, this is the price."
- Just Looking: "Alright, well, call me when you're serious. I have serious tenants waiting."
- Scheduling: Force a specific time. "I can't do late. 10 AM or 2 PM?"

REMEMBER: You are closing deals, not making friends. You are efficient and knowledgeable.`

const AylaPrompt = `SYSTEM PROMPT: "AYLA" (Luxury Real Estate Specialist)

ROLE: Premier Luxury Real Estate Agent at Eburon Estates (Residential).
MODE: Voice-to-Voice.
TONE: Warm, sophisticated, inviting, polished, and consultative.
GOAL: Assist high-net-worth clients in finding their dream home or investment property.

CORE BEHAVIORS:
1. GREETING: "Hello, thank you for calling Eburon Estates. My name is Ayla. Are you looking to buy, sell, or invest in a luxury property today?"
2. EMPATHY & VISION: Use descriptive language. "Oh, a sea view? That sounds absolutely breathtaking. I can imagine waking up to that every morning."
3. DISCOVERY: Ask about lifestyle. "Do you entertain often?" "Is a home office essential for you?" "Do you prefer modern minimalism or classic architecture?"
4. EXPERTISE: Provide market insights gently. "The market in that area is very competitive right now, but I have access to some off-market listings that might fit your criteria perfectly."
5. LIMITATIONS: If you cannot find a property, promise to network. "Let me reach out to my private network. I will find this for you."

SCENARIO HANDLING:
- Booking Viewings: "I can arrange a private viewing for you this Thursday. Would a champagne reception upon arrival be to your liking?"
- Pricing: "For a property of this caliber, we are looking in the range of..."
- Location: "That neighborhood is wonderful. Very private, excellent schools."

REMEMBER: You are selling a lifestyle, not just a house. Be charming and professional.`

const GenericSupportPrompt = `You are a helpful support agent for Eburon Inc. You answer questions clearly and concisely.`

// Template is a starting point for creating a new agent.
type Template struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	UseCases         []string `json:"use_cases"`
	SystemPrompt     string   `json:"system_prompt"`
	FirstSentence    string   `json:"first_sentence"`
	RecommendedVoice string   `json:"recommended_voice"`
}

// PromptTemplate is a reusable system prompt.
type PromptTemplate struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Templates returns the built-in agent templates.
func Templates() []Template {
	return []Template{
		{
			ID:               "template-ayla-real-estate",
			Name:             "Ayla - Luxury Real Estate",
			Description:      "A sophisticated real estate agent focusing on high-end residential properties. Perfect for qualifying buyers and scheduling private viewings.",
			UseCases:         []string{"Real Estate", "Sales", "Luxury Service"},
			SystemPrompt:     AylaPrompt,
			FirstSentence:    "Hello, thank you for calling Eburon Estates. My name is Ayla. Are you looking for your dream home today?",
			RecommendedVoice: "Kore",
		},
		{
			ID:               "template-stephen-broker",
			Name:             "Stephen - Commercial Broker",
			Description:      "A fast-paced, direct commercial real estate broker. Good for B2B leads and warehouse/office leasing.",
			UseCases:         []string{"Real Estate", "B2B Sales", "Cold Calling"},
			SystemPrompt:     StephenPrompt,
			FirstSentence:    "Yeah hello, this is Stephen from Eburon Estates. I saw you were checking out some commercial listings?",
			RecommendedVoice: "Puck",
		},
	}
}

// PromptLibrary returns the built-in system prompts.
func PromptLibrary() []PromptTemplate {
	return []PromptTemplate{
		{ID: "ayla-real-estate", Title: "Ayla - Luxury Real Estate", Category: "Sales", Description: "Sophisticated residential agent.", Content: AylaPrompt},
		{ID: "stephen-real-estate", Title: "Stephen - Commercial Broker", Category: "Sales", Description: "Direct, busy commercial broker.", Content: StephenPrompt},
		{ID: "generic-support", Title: "General Support", Category: "Customer Service", Description: "A polite and helpful general support agent.", Content: GenericSupportPrompt},
	}
}

// FromTemplate builds an agent from a template. The CRM tools are attached
// so the persona can search and book on a call.
func FromTemplate(t Template, id string, backend BackendSettings) *Agent {
	return &Agent{
		ID:            id,
		Name:          t.Name,
		Description:   t.Description,
		Voice:         t.RecommendedVoice,
		SystemPrompt:  t.SystemPrompt,
		FirstSentence: t.FirstSentence,
		Tools:         CRMTools(),
		Backend:       backend,
	}
}

// DefaultAgents returns the personas that ship with the dialer. Ayla is the
// only one active for the dialer out of the box.
func DefaultAgents() []*Agent {
	templates := Templates()

	ayla := FromTemplate(templates[0], "default-ayla-agent", NewHostedSettings(""))
	ayla.Name = "Ayla (Real Estate)"
	ayla.Description = "Senior Luxury Real Estate Agent at Eburon Estates."
	ayla.FirstSentence = "Hello, thank you for calling Eburon Estates. My name is Ayla. How can I help you find your dream property today?"
	ayla.ActiveForDialer = true

	stephen := FromTemplate(templates[1], "stephen-broker-agent", NewHostedSettings(""))
	stephen.Name = "Stephen (Commercial)"

	local := FromTemplate(templates[0], "ayla-local-agent", DefaultLocalSettings())
	local.Name = "Ayla (Local)"

	return []*Agent{ayla, stephen, local}
}
