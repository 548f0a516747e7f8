package discord

import (
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/directory"
)

const (
	buttonsPerRow = 5
	maxRows       = 5

	buttonStyleLink = 5
)

func renderMessage(m directory.Message) message {
	out := message{
		Content:    m.Content,
		Components: renderControls(m.Controls),
		AllowedMentions: &allowedMentions{
			Parse: []string{},
			Users: m.MentionUsers,
			Roles: m.MentionRoles,
		},
	}
	if m.Embed != nil {
		out.Embeds = []embed{renderEmbed(*m.Embed)}
	}
	return out
}

func renderEdit(m directory.Message) messageEdit {
	msg := renderMessage(m)
	out := messageEdit{
		Content:         msg.Content,
		Embeds:          msg.Embeds,
		Components:      msg.Components,
		AllowedMentions: msg.AllowedMentions,
	}
	if out.Embeds == nil {
		out.Embeds = []embed{}
	}
	if out.Components == nil {
		out.Components = []component{}
	}
	return out
}

func renderEmbed(e directory.Embed) embed {
	out := embed{Title: e.Title, Description: e.Description, Color: e.Color}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &embedFooter{Text: e.Footer}
	}
	return out
}

// renderControls раскладывает кнопки по рядам по 5; лишние отбрасываются.
func renderControls(cs []directory.Control) []component {
	var rows []component
	for i := 0; i < len(cs) && len(rows) < maxRows; i += buttonsPerRow {
		end := min(i+buttonsPerRow, len(cs))
		row := component{Type: componentRow}
		for _, c := range cs[i:end] {
			row.Components = append(row.Components, renderButton(c))
		}
		rows = append(rows, row)
	}
	return rows
}

func renderButton(c directory.Control) component {
	b := component{
		Type:     componentButton,
		Style:    int(c.Style),
		Label:    c.Label,
		CustomID: c.CustomID,
		Disabled: c.Disabled,
		Emoji:    parseEmoji(c.Emoji),
	}
	if b.Style == 0 {
		b.Style = int(directory.StyleSecondary)
	}
	if c.URL != "" {
		b.Style = buttonStyleLink
		b.URL = c.URL
		b.CustomID = ""
	}
	return b
}

// parseEmoji принимает юникод-эмодзи или серверный вида <:name:id>.
func parseEmoji(s string) *emoji {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		parts := strings.Split(strings.Trim(s, "<>"), ":")
		if len(parts) == 3 {
			if id, err := snowflake.ParseString(parts[2]); err == nil {
				return &emoji{ID: id, Name: parts[1]}
			}
		}
	}
	return &emoji{Name: s}
}

func renderModal(m directory.Modal) modal {
	out := modal{CustomID: m.CustomID, Title: m.Title}
	for _, in := range m.Inputs {
		required := in.Required
		out.Components = append(out.Components, component{
			Type: componentRow,
			Components: []component{{
				Type:        componentTextInput,
				Style:       1,
				Label:       in.Label,
				CustomID:    in.CustomID,
				Placeholder: in.Placeholder,
				Value:       in.Value,
				MinLength:   in.MinLength,
				MaxLength:   in.MaxLength,
				Required:    &required,
			}},
		})
	}
	return out
}

// disableAll выключает все кнопки сообщения; возвращает false, если
// выключать нечего.
func disableAll(rows []component) ([]component, bool) {
	changed := false
	for i := range rows {
		for j := range rows[i].Components {
			c := &rows[i].Components[j]
			if c.Type == componentButton && !c.Disabled && c.Style != buttonStyleLink {
				c.Disabled = true
				changed = true
			}
		}
	}
	return rows, changed
}
