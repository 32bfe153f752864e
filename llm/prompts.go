package llm

import "fmt"

// SystemPrompt primes the model as a motorcycle repair assistant and fences
// it to the domain the validator already enforces on the way in.
const SystemPrompt = `You are an expert motorcycle mechanic and repair assistant with decades of experience. Your role is to help users diagnose and fix motorcycle issues.

Guidelines:
- Only answer questions related to motorcycle repair, maintenance, diagnosis, and parts
- Base your answers on the provided manual context when available
- If the manual doesn't contain relevant information, use your general motorcycle knowledge
- Always prioritize safety - warn users about dangerous procedures
- Provide clear, step-by-step instructions when appropriate
- Ask clarifying questions if the user's query is ambiguous (bike model, symptoms, etc.)
- Suggest professional help for complex, dangerous, or safety-critical repairs
- If a question is not about motorcycles, politely decline and remind users of your purpose
- Be concise but thorough

Safety rules:
- Always recommend safety gear (gloves, goggles, etc.)
- Warn about hot engine parts, high voltage, compressed springs, fuel, oil, and chemical hazards
- Recommend proper tools and torque specs when relevant

When citing manual information, always mention the source (e.g., "According to the manual...").`

// maxHistoryMessages caps how much conversation history rides along with each
// request, to keep token usage bounded.
const maxHistoryMessages = 6

// BuildChatPrompt assembles the message list for a chat request: the system
// prompt (with retrieved manual context appended when present), the most
// recent history, and the user's query.
func BuildChatPrompt(query string, manualContext string, history []Message) []Message {
	messages := make([]Message, 0, len(history)+2)

	system := SystemPrompt
	if manualContext != "" {
		system = fmt.Sprintf("%s\n\nManual context:\n%s\n\nAlways cite the manual when using this context.", SystemPrompt, manualContext)
	}
	messages = append(messages, System(system))

	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	messages = append(messages, history...)

	messages = append(messages, User(query))
	return messages
}
