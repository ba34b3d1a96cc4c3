package report

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dsvrelay/dsv-relay/internal/notifications"
	"github.com/dsvrelay/dsv-relay/internal/practicecode"
)

const notAvailable = "n/d"

const htmlBodyTemplate = `<h2>Nuova segnalazione disservizio</h2>
<p><b>Codice pratica:</b> {{ code }}<br/>
   <b>Categoria:</b> {{ category }}</p>
<p><b>Nome:</b> {{ name }}<br/>
   <b>Email:</b> {{ email }}</p>
<p><b>Descrizione:</b><br/>{% for line in description_lines %}{{ line }}{% if not forloop.Last %}<br/>{% endif %}{% endfor %}</p>
<p><b>Posizione:</b> {{ lat|default:"n/d" }}, {{ lon|default:"n/d" }}
   (accuratezza: {{ accuracy|default:"n/d" }} m)<br/>
   <b>Google Maps:</b> {% if maps_link %}<a href="{{ maps_link }}">Apri posizione</a>{% else %}n/d{% endif %}</p>
<p><b>Timestamp dispositivo:</b> {{ timestamp|default:"n/d" }}<br/>
   <b>Ricevuto:</b> {{ received }}</p>
`

var (
	htmlBody   = pongo2.Must(pongo2.FromString(htmlBodyTemplate))
	htmlPolicy = newMailPolicy()
)

// newMailPolicy allows only the markup the report template produces.
func newMailPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("h2", "p", "b", "br", "a")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

// Settings are the delivery parameters read for every submission.
type Settings struct {
	Destination string
	From        notifications.Address
	Location    *time.Location
}

// MapsLink returns a Google Maps link for the coordinates, or "" when either is missing.
func MapsLink(lat, lon string) string {
	if lat == "" || lon == "" {
		return ""
	}
	return "https://www.google.com/maps?q=" + escapeComponent(lat) + "," + escapeComponent(lon)
}

// componentUnescape restores the characters browsers leave bare in a URI component.
var componentUnescape = strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

// escapeComponent escapes s like a browser's encodeURIComponent.
func escapeComponent(s string) string {
	return componentUnescape.Replace(url.QueryEscape(s))
}

// FormatReceived renders t the way it-IT locales print a date and time.
func FormatReceived(t time.Time) string {
	return t.Format("02/01/2006, 15:04:05")
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func subjectFor(code practicecode.Code, name string) string {
	return fmt.Sprintf("Segnalazione disservizio [%s] - %s", code, name)
}

func textBody(sub Submission, code practicecode.Code, received string) string {
	link := MapsLink(sub.Lat, sub.Lon)
	mapsLine := "Google Maps: " + notAvailable
	if link != "" {
		mapsLine = "Google Maps: " + link
	}
	return strings.Join([]string{
		"Codice pratica: " + code.String(),
		"Categoria: " + sub.Category,
		"",
		"Nome: " + sub.Name,
		"Email: " + sub.Email,
		"",
		"Descrizione:",
		sub.Description,
		"",
		fmt.Sprintf("Posizione: %s, %s (accuratezza: %s m)", orNA(sub.Lat), orNA(sub.Lon), orNA(sub.Accuracy)),
		mapsLine,
		"",
		"Timestamp dispositivo: " + orNA(sub.Timestamp),
		"Ricevuto: " + received,
	}, "\n")
}

func renderHTML(sub Submission, code practicecode.Code, received string) (string, error) {
	out, err := htmlBody.Execute(pongo2.Context{
		"code":              code.String(),
		"category":          sub.Category,
		"name":              sub.Name,
		"email":             sub.Email,
		"description_lines": strings.Split(sub.Description, "\n"),
		"lat":               sub.Lat,
		"lon":               sub.Lon,
		"accuracy":          sub.Accuracy,
		"maps_link":         MapsLink(sub.Lat, sub.Lon),
		"timestamp":         sub.Timestamp,
		"received":          received,
	})
	if err != nil {
		return "", fmt.Errorf("render html body: %w", err)
	}
	return htmlPolicy.Sanitize(out), nil
}

// photoAttachment applies the upload defaults: foto.jpg as name, and a sniffed image type
// (else image/jpeg) when the client sent no content type or a generic one.
func photoAttachment(p *Photo) notifications.Attachment {
	name := strings.TrimSpace(p.Filename)
	if name == "" {
		name = "foto.jpg"
	}
	ct := strings.TrimSpace(p.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = "image/jpeg"
		if detected := mimetype.Detect(p.Data); strings.HasPrefix(detected.String(), "image/") {
			ct = detected.String()
		}
	}
	return notifications.Attachment{Filename: name, ContentType: ct, Content: p.Data}
}

// Compose builds the outbound email for an accepted submission.
func Compose(sub Submission, code practicecode.Code, settings Settings, now time.Time) (notifications.EmailMessage, error) {
	loc := settings.Location
	if loc == nil {
		loc = time.UTC
	}
	received := FormatReceived(now.In(loc))
	html, err := renderHTML(sub, code, received)
	if err != nil {
		return notifications.EmailMessage{}, err
	}
	reporter := &notifications.Address{Name: sub.Name, Address: sub.Email}
	msg := notifications.EmailMessage{
		From:    settings.From,
		To:      []*notifications.Address{{Address: settings.Destination}},
		ReplyTo: []*notifications.Address{reporter},
		Bcc:     []*notifications.Address{{Address: sub.Email}},
		Subject: subjectFor(code, sub.Name),
		Text:    textBody(sub, code, received),
		HTML:    html,
	}
	if sub.Photo != nil {
		msg.Attachments = []notifications.Attachment{photoAttachment(sub.Photo)}
	}
	return msg, nil
}
