// Package twiml renders the small subset of the Twilio voice-response markup
// the webhooks need: a spoken prompt, a recording directive, and hangup.
package twiml

import (
	"encoding/xml"
	"strconv"
)

// Response is the document root returned to a voice webhook.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Say speaks text to the caller.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Record starts recording the caller with a bounded duration.
type Record struct {
	XMLName            xml.Name `xml:"Record"`
	Action             string   `xml:"action,attr,omitempty"`
	MaxLength          int      `xml:"maxLength,attr"`
	FinishOnKey        string   `xml:"finishOnKey,attr,omitempty"`
	Transcribe         bool     `xml:"transcribe,attr,omitempty"`
	TranscribeCallback string   `xml:"transcribeCallback,attr,omitempty"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

const defaultVoice = "Polly.Amy"

// RecordOptions configures the recording directive of a greeting response.
type RecordOptions struct {
	Action             string
	MaxSeconds         int
	FinishKey          string
	Transcribe         bool
	TranscribeCallback string
}

// Greeting builds the incoming-call response: prompt plus recording start.
func Greeting(prompt string, opts RecordOptions) Response {
	return Response{Verbs: []any{
		Say{Voice: defaultVoice, Text: prompt},
		Record{
			Action:             opts.Action,
			MaxLength:          opts.MaxSeconds,
			FinishOnKey:        opts.FinishKey,
			Transcribe:         opts.Transcribe,
			TranscribeCallback: opts.TranscribeCallback,
		},
	}}
}

// Goodbye builds the post-recording response: thank-you prompt plus hangup.
func Goodbye(prompt string) Response {
	return Response{Verbs: []any{
		Say{Voice: defaultVoice, Text: prompt},
		Hangup{},
	}}
}

// Render serializes the response with the XML declaration Twilio expects.
func Render(r Response) ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// MarshalXML flattens the verb list under <Response>.
func (r Response) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Response"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range r.Verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// MarshalXML emits transcribe attributes only when transcription is on.
func (rec Record) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Record"}
	if rec.Action != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "action"}, Value: rec.Action})
	}
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "maxLength"}, Value: strconv.Itoa(rec.MaxLength)})
	if rec.FinishOnKey != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "finishOnKey"}, Value: rec.FinishOnKey})
	}
	if rec.Transcribe {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "transcribe"}, Value: "true"})
		if rec.TranscribeCallback != "" {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "transcribeCallback"}, Value: rec.TranscribeCallback})
		}
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}
