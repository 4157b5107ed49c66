package responder

import (
	"fmt"
	"strings"
)

var escalationKeywords = []string{
	"detailed pricing", "exact cost", "price quote", "cost estimate", "budget proposal",
	"detailed implementation plan", "migration timeline", "deployment schedule",
	"contract terms", "legal agreement", "sla details", "service agreement",
	"speak to sales", "talk to sales team", "contact sales", "human sales rep",
	"account manager", "sales consultant",
}

var uncertaintyIndicators = []string{
	"i don't know", "i'm not sure", "i can't provide", "i don't have",
	"that's beyond my knowledge", "i'm unable to", "i cannot determine",
	"that requires", "you should contact", "speak with our team",
}

const (
	leadEscalation  = "This requires detailed information from our specialists."
	leadUncertain   = "This requires detailed expertise from our team."
	leadUnavailable = "I'm experiencing technical difficulties at the moment."
)

const retryPrompt = "The user said: %s. Please provide a different, more specific response without repeating previous information. Focus on next steps or ask for more details."

func needsEscalation(query string) bool {
	return containsAny(strings.ToLower(query), escalationKeywords)
}

func soundsUncertain(answer string) bool {
	return containsAny(strings.ToLower(strings.ReplaceAll(answer, "’", "'")), uncertaintyIndicators)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func (g *Generator) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are Alex, a friendly and knowledgeable sales consultant at %s.\n\n", g.contact.Company)
	b.WriteString(g.catalog.Describe())
	b.WriteString(`
## How to respond
- Answer in 2 to 4 short sentences or a compact bullet list.
- Stay on the products and services listed above. Never invent features, prices or customers.
- Ask one focused follow-up question about the visitor's fleet, project or business need.
- For pricing, contracts, timelines or detailed plans, direct the visitor to our team.
`)
	fmt.Fprintf(&b, "\n## Contact\n- Email: %s\n", g.contact.Email)
	if g.contact.FormURL != "" {
		fmt.Fprintf(&b, "- Contact form: %s\n", g.contact.FormURL)
	}
	if g.contact.WebsiteURL != "" {
		fmt.Fprintf(&b, "- Website: %s\n", g.contact.WebsiteURL)
	}
	return b.String()
}

func (g *Generator) contactResponse(lead string) string {
	var b strings.Builder
	b.WriteString(lead)
	b.WriteString("\n\n**📞 Contact Our Team**\n\n")
	if g.contact.FormURL != "" {
		fmt.Fprintf(&b, "• **Contact form:** %s\n", g.contact.FormURL)
	}
	fmt.Fprintf(&b, "• **Email:** %s\n", g.contact.Email)
	b.WriteString("\n**What to Include**\n")
	b.WriteString("• Your company name and fleet or project size\n")
	b.WriteString("• The challenge you want to solve\n")
	b.WriteString("• Your preferred timeline\n")
	b.WriteString("\nOur specialists will get back to you within one business day.")
	return b.String()
}

// similarity is the share of the smaller word set found in the other.
func similarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	common := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			common++
		}
	}
	return float64(common) / float64(min(len(wa), len(wb)))
}

func wordSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}
