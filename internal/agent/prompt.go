package agent

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/ai-engine/internal/knowledge"
	"github.com/capitalize-ai/ai-engine/internal/tenant"
)

const contextHeader = "INFORMACIÓN RELEVANTE DE LA EMPRESA:"

const noKnowledgeNotice = "INFORMACIÓN DE LA EMPRESA: todavía no hay documentos cargados para esta empresa. " +
	"No inventes datos concretos (precios, horarios, direcciones); si te los piden, ofrece conectar con un humano."

// SystemPrompt builds the policy instructions for a tenant.
func SystemPrompt(p tenant.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres %s, un asistente virtual %s de %s.\n\n", p.AgentName, p.Tone, p.CompanyName)

	b.WriteString("REGLAS:\n")
	b.WriteString("1. Responde de forma concisa (máximo 2-3 oraciones)\n")
	b.WriteString("2. Sé amable y servicial\n")
	b.WriteString("3. Si no sabes algo, ofrece conectar con un humano\n")
	b.WriteString("4. Si el usuario quiere agendar cita, pregunta día y hora\n")
	b.WriteString("5. Si detectas frustración, ofrece escalar a un humano\n")
	b.WriteString("6. USA LA INFORMACIÓN DE LA EMPRESA cuando esté disponible\n")

	if p.UseEmojis {
		b.WriteString("\nPuedes usar emojis con moderación.\n")
	} else {
		b.WriteString("\nNo uses emojis.\n")
	}
	if p.Language != "" && p.Language != "es" {
		fmt.Fprintf(&b, "Responde en el idioma con código %q salvo que el usuario escriba en otro.\n", p.Language)
	}
	if p.BusinessHours != "" {
		fmt.Fprintf(&b, "Horario de atención: %s (zona horaria %s).\n", p.BusinessHours, p.Timezone)
	}
	if p.Greeting != "" {
		fmt.Fprintf(&b, "Si el usuario solo saluda, responde con algo como: %q\n", p.Greeting)
	}
	if p.FallbackMessage != "" {
		fmt.Fprintf(&b, "Si no entiendes el mensaje, responde: %q\n", p.FallbackMessage)
	}
	if p.CustomInstructions != "" {
		b.WriteString("\nINSTRUCCIONES ADICIONALES:\n")
		b.WriteString(p.CustomInstructions)
		b.WriteString("\n")
	}

	b.WriteString("\nOBJETIVO: Ayudar al cliente y guiarlo hacia agendar una cita o resolver su consulta.")
	return b.String()
}

// FormatContext renders retrieved snippets as a prompt block. It returns the
// explicit no-knowledge notice when there are none.
func FormatContext(snippets []knowledge.Snippet) string {
	if len(snippets) == 0 {
		return noKnowledgeNotice
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	for i, s := range snippets {
		fmt.Fprintf(&b, "\n\n[Documento %d]\n%s", i+1, s.Content)
	}
	return b.String()
}
