// ABOUTME: RenderXML produces the agent-facing XML rendering of an incoming MAILMessage.
// ABOUTME: Agents are trained against this exact shape; it is part of the host contract.
package message

import (
	"bytes"
	"encoding/xml"
)

type xmlAddress struct {
	Type string `xml:"type,attr"`
	Addr string `xml:",chardata"`
}

type xmlIncomingMessage struct {
	XMLName   xml.Name   `xml:"incoming_message"`
	Timestamp string     `xml:"timestamp"`
	From      xmlAddress `xml:"from"`
	To        xmlAddress `xml:"to"`
	Subject   string     `xml:"subject"`
	Body      string     `xml:"body"`
}

// RenderXML renders m as the single "user" history entry an agent receives,
// per spec.md §6: `<incoming_message><timestamp/><from type=.../><to type=.../><subject/><body/></incoming_message>`.
// to is the specific recipient this rendering is being produced for — callers
// render once per resolved local recipient, since a Broadcast/Interrupt has
// many.
func RenderXML(m MAILMessage, to string) (string, error) {
	sender := m.Sender()

	doc := xmlIncomingMessage{
		Timestamp: m.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		From:      xmlAddress{Type: sender.Type.String(), Addr: sender.Addr},
		To:        xmlAddress{Type: "agent", Addr: to},
		Subject:   m.Subject(),
		Body:      m.Text(),
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
