package widget

import (
	"bytes"
	"html/template"
	"math"
	"strconv"
	"time"
)

type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// EscalationNotice is shown under answers the service handed to a human.
const EscalationNotice = "Escalated to human agent"

func ConfidenceTier(confidence float64) Tier {
	switch {
	case confidence > 0.8:
		return TierHigh
	case confidence > 0.6:
		return TierMedium
	default:
		return TierLow
	}
}

func (t Tier) Color() string {
	switch t {
	case TierHigh:
		return "#10B981"
	case TierMedium:
		return "#F59E0B"
	default:
		return "#EF4444"
	}
}

// CitationLine formats a citation as "Title (p. N)", page only when known.
func CitationLine(c Citation) string {
	if c.Page == nil {
		return c.Title
	}
	return c.Title + " (p. " + strconv.Itoa(*c.Page) + ")"
}

type ConfidenceView struct {
	Percent int    `json:"percent"`
	Tier    Tier   `json:"tier"`
	Color   string `json:"color"`
}

type TurnView struct {
	ID         uint64          `json:"id"`
	Sender     Sender          `json:"sender"`
	Text       string          `json:"text"`
	Time       string          `json:"time"`
	IsError    bool            `json:"is_error"`
	Confidence *ConfidenceView `json:"confidence,omitempty"`
	Citations  []string        `json:"citations,omitempty"`
	Notice     string          `json:"notice,omitempty"`
}

type View struct {
	TenantID       string     `json:"tenant_id"`
	ConversationID string     `json:"conversation_id"`
	Position       Position   `json:"position"`
	AccentColor    string     `json:"color"`
	Turns          []TurnView `json:"turns"`
	// Typing is the pending indicator; it always renders after Turns.
	Typing bool `json:"typing"`
	// ScrollTo is the DOM id of the newest turn.
	ScrollTo string `json:"scroll_to,omitempty"`
}

// Render projects a session snapshot into display data. It has no side
// effects on the session.
func Render(cfg EmbedConfig, s Session) View {
	v := View{
		TenantID:       s.TenantID,
		ConversationID: s.ConversationID,
		Position:       cfg.Position,
		AccentColor:    cfg.AccentColor,
		Turns:          make([]TurnView, 0, len(s.Turns)),
		Typing:         s.Pending,
	}
	for _, t := range s.Turns {
		v.Turns = append(v.Turns, RenderTurn(t))
	}
	if n := len(v.Turns); n > 0 {
		v.ScrollTo = turnDOMID(v.Turns[n-1].ID)
	}
	if v.Typing {
		v.ScrollTo = "sq-typing"
	}
	return v
}

// RenderTurn projects a single turn, as streamed to hosts that append
// incrementally.
func RenderTurn(t Turn) TurnView {
	tv := TurnView{
		ID:      t.ID,
		Sender:  t.Sender,
		Text:    t.Text,
		Time:    t.Timestamp.Format(time.Kitchen),
		IsError: t.IsError,
	}
	if t.Sender != SenderAssistant || t.IsError || t.Metadata == nil {
		return tv
	}

	md := t.Metadata
	if md.Confidence != nil {
		tier := ConfidenceTier(*md.Confidence)
		tv.Confidence = &ConfidenceView{
			Percent: percent(*md.Confidence),
			Tier:    tier,
			Color:   tier.Color(),
		}
	}
	for _, c := range md.Citations {
		tv.Citations = append(tv.Citations, CitationLine(c))
	}
	if md.Escalated {
		tv.Notice = EscalationNotice
	}
	return tv
}

func percent(c float64) int {
	p := int(math.Round(c * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// WelcomeText is shown while the transcript is empty.
const WelcomeText = "Hi! How can we help you today?"

func turnDOMID(id uint64) string { return "sq-turn-" + strconv.FormatUint(id, 10) }

var transcriptTmpl = template.Must(template.New("transcript").Funcs(template.FuncMap{
	"domID":   turnDOMID,
	"welcome": func() string { return WelcomeText },
}).Parse(transcriptHTML))

// RenderHTML renders the message list of the widget window. All text is
// escaped.
func RenderHTML(v View) ([]byte, error) {
	var buf bytes.Buffer
	if err := transcriptTmpl.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const transcriptHTML = `<div class="sq-widget-messages sq-widget-{{.Position}}" data-conversation-id="{{.ConversationID}}"{{if .ScrollTo}} data-scroll-to="{{.ScrollTo}}"{{end}}>
{{- if not .Turns}}{{if not .Typing}}
  <div class="sq-widget-welcome">
    <p>{{welcome}}</p>
  </div>
{{- end}}{{end}}
{{- range .Turns}}
  {{- if eq .Sender "user"}}
  <div id="{{domID .ID}}" class="sq-widget-message sq-widget-message-user">
    <div class="sq-widget-message-bubble" style="background-color: {{$.AccentColor}}">{{.Text}}</div>
    <div class="sq-widget-time">{{.Time}}</div>
  </div>
  {{- else}}
  <div id="{{domID .ID}}" class="sq-widget-message sq-widget-message-bot{{if .IsError}} sq-widget-message-error{{end}}">
    <div class="sq-widget-message-bubble">{{.Text}}</div>
    {{- with .Confidence}}
    <div class="sq-widget-confidence sq-widget-confidence-{{.Tier}}">
      <span>Confidence: {{.Percent}}%</span>
      <div class="sq-widget-confidence-bar"><div style="width: {{.Percent}}%; background-color: {{.Color}}"></div></div>
    </div>
    {{- end}}
    {{- if .Citations}}
    <div class="sq-widget-citations">Sources:
      {{- range .Citations}}
      <span>{{.}}</span>
      {{- end}}
    </div>
    {{- end}}
    {{- if .Notice}}
    <div class="sq-widget-escalated">{{.Notice}}</div>
    {{- end}}
    <div class="sq-widget-time">{{.Time}}</div>
  </div>
  {{- end}}
{{- end}}
{{- if .Typing}}
  <div id="sq-typing" class="sq-widget-message sq-widget-message-bot">
    <div class="sq-widget-typing"><span></span><span></span><span></span></div>
  </div>
{{- end}}
</div>
`
