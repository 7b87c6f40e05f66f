package llm

import (
	"strings"

	"github.com/imkonsowa/restaurant-chatbot/models"
)

var allowedRoles = map[string]bool{
	models.RoleSystem:    true,
	models.RoleUser:      true,
	models.RoleAssistant: true,
	models.RoleTool:      true,
}

// FormatMessages degrades unknown roles to user and drops empty messages,
// except system ones. Only tool messages keep their name.
func FormatMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if !allowedRoles[role] {
			role = models.RoleUser
		}

		msg := models.Message{Role: role, Content: m.Content}
		if role == models.RoleTool {
			msg.Name = m.Name
		}

		if role != models.RoleSystem && strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Replacements are applied in order: the two byte sequences first, then the
// lone "Ã" and finally apostrophe accents.
var italianFixes = []string{
	"Ã²", "ò",
	"Ã¨", "è",
	"Ã¬", "ì",
	"Ã¹", "ù",
	"Ã", "à",
	"a'", "à",
	"e'", "è",
	"i'", "ì",
	"o'", "ò",
	"u'", "ù",
}

// FixItalianEncoding repairs the mojibake and apostrophe accents models tend
// to produce in Italian replies.
func FixItalianEncoding(text string) string {
	for i := 0; i < len(italianFixes); i += 2 {
		text = strings.ReplaceAll(text, italianFixes[i], italianFixes[i+1])
	}
	return text
}
