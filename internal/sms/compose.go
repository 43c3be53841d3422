// Package sms renders final outbound SMS text: event tag header, message
// body, and the one-time A2P brand/opt-out footer, within a single carrier
// segment whenever possible.
package sms

import "strings"

// StopNotice is the carrier-mandated opt-out line. It is never dropped, even
// under aggressive truncation.
const StopNotice = "Reply STOP to opt out."

// Ellipsis marks a truncated body.
const Ellipsis = "..."

type ComposeInput struct {
	EventTag      string // short event branding tag; rendered as [Tag]
	Body          string
	Link          string // optional URL appended after the body
	Brand         string // brand name for the A2P footer
	IncludeFooter bool   // true until the guest has received the footer once per event
}

type Composed struct {
	Text        string
	Segments    int
	LinkDropped bool
	Truncated   bool
}

// Compose renders the final text for one (message, guest) pair. The result is
// a pure function of the input: identical input yields byte-identical output.
//
// Length budgeting keeps the text within one segment in this priority:
// full text, then drop the link, then truncate the body with an ellipsis.
// The footer (and its STOP notice) survives all three steps.
func Compose(in ComposeInput) Composed {
	header := ""
	if tag := strings.TrimSpace(in.EventTag); tag != "" {
		header = "[" + Normalize(tag) + "]\n"
	}
	body := Normalize(strings.TrimSpace(in.Body))
	link := Normalize(strings.TrimSpace(in.Link))

	footer := ""
	if in.IncludeFooter {
		brand := strings.TrimSpace(in.Brand)
		if brand == "" {
			brand = "Unveil"
		}
		footer = "\n\nvia " + Normalize(brand) + "\n" + StopNotice
	}

	assemble := func(body, link string) string {
		text := header + body
		if link != "" {
			text += "\n" + link
		}
		return text + footer
	}

	// Step 1: full text.
	text := assemble(body, link)
	if Segments(text) <= 1 {
		return Composed{Text: text, Segments: Segments(text)}
	}

	// Step 2: drop the link.
	linkDropped := false
	if link != "" {
		linkDropped = true
		text = assemble(body, "")
		if Segments(text) <= 1 {
			return Composed{Text: text, Segments: 1, LinkDropped: true}
		}
	}

	// Step 3: truncate the body. The header and footer stay intact.
	runes := []rune(body)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := assemble(strings.TrimRight(string(runes), " ")+Ellipsis, "")
		if Segments(candidate) <= 1 {
			return Composed{Text: candidate, Segments: 1, LinkDropped: linkDropped, Truncated: true}
		}
	}

	// Header plus footer alone exceed one segment; give up on the budget but
	// keep the opt-out notice.
	text = assemble(Ellipsis, "")
	return Composed{Text: text, Segments: Segments(text), LinkDropped: linkDropped, Truncated: true}
}
