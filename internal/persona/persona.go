// Package persona defines who the voice agent is: display name, voice,
// greeting and the staged sales script sent as the system instruction. The
// default is the AfroLuxe concierge; a YAML file overrides any field.
package persona

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona is the agent identity.
type Persona struct {
	Name         string `yaml:"name"`
	Company      string `yaml:"company"`
	Voice        string `yaml:"voice"`
	Greeting     string `yaml:"greeting"`
	SystemPrompt string `yaml:"system_prompt"`
}

const defaultSystemPrompt = `You are Melanie, a warm, expert salon growth consultant for AfroLuxe. You speak with salon owners who visit the AfroLuxe site. Keep every reply short and conversational, one to three sentences, because this is a live voice call.

Work through four stages, one at a time, never announcing them:
DISCOVERY - learn about their salon: services, clientele, how they get bookings today.
AGITATE - surface the cost of the problem: empty chairs, no-shows, hours lost to DMs and phone tag.
SOLUTION - explain how AfroLuxe fills their calendar: automated booking, reminders, targeted local marketing for textured-hair specialists.
CLOSE - invite them to book a free growth audit with the team.

Stay on salon growth. If asked something unrelated, answer briefly and steer back. Never read lists aloud; weave facts into conversation.`

// Default returns the built-in concierge persona.
func Default() Persona {
	return Persona{
		Name:         "Melanie",
		Company:      "AfroLuxe",
		Voice:        "Kore",
		Greeting:     "Hello! I'm Melanie from AfroLuxe. How can I help grow your salon today?",
		SystemPrompt: defaultSystemPrompt,
	}
}

// Load reads a persona file and overlays it on the default. An empty path
// returns the default; a missing file is reported and skipped, not fatal.
func Load(path string) Persona {
	p := Default()
	if path == "" {
		return p
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("persona: cannot read %s (%v), using default", path, err)
		return p
	}
	var override Persona
	if err := yaml.Unmarshal(raw, &override); err != nil {
		log.Printf("persona: invalid yaml in %s (%v), using default", path, err)
		return p
	}
	p.merge(override)
	return p
}

// Parse decodes a persona document without defaults applied on error.
func Parse(raw []byte) (Persona, error) {
	p := Default()
	var override Persona
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Persona{}, fmt.Errorf("parse persona: %w", err)
	}
	p.merge(override)
	return p, nil
}

func (p *Persona) merge(o Persona) {
	if o.Name != "" {
		p.Name = o.Name
	}
	if o.Company != "" {
		p.Company = o.Company
	}
	if o.Voice != "" {
		p.Voice = o.Voice
	}
	if o.Greeting != "" {
		p.Greeting = o.Greeting
	}
	if o.SystemPrompt != "" {
		p.SystemPrompt = o.SystemPrompt
	}
}
