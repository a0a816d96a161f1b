package voices

import (
	"encoding/xml"
	"fmt"
)

// Piece describes the score being exported.
type Piece struct {
	Title    string `json:"title" xml:"Titel"`
	Genre    string `json:"genre" xml:"Genre"`
	Composer string `json:"komponist" xml:"Komponist"`
	Arranger string `json:"arrangeur" xml:"Arrangeur"`
}

// Index is the NotenIndex document listing every exported voice.
type Index struct {
	XMLName xml.Name    `xml:"NotenIndex"`
	Piece   Piece       `xml:"Stueck"`
	Voices  indexVoices `xml:"Stimmen"`
}

type indexVoices struct {
	Items []IndexVoice `xml:"Stimme"`
}

// IndexVoice is one exported voice. Pages are 1-based inclusive.
type IndexVoice struct {
	Label     string `xml:"Stimmenbezeichnung"`
	File      string `xml:"Dateiname"`
	StartPage int    `xml:"StartSeite"`
	EndPage   int    `xml:"EndSeite"`
}

// NewIndex builds the index for the given ranges.
func NewIndex(piece Piece, ranges []Range) Index {
	items := make([]IndexVoice, len(ranges))
	for i, r := range ranges {
		items[i] = IndexVoice{
			Label:     r.Label,
			File:      FileName(piece.Title, r.Label),
			StartPage: r.Start + 1,
			EndPage:   r.End + 1,
		}
	}
	return Index{Piece: piece, Voices: indexVoices{Items: items}}
}

// Entries returns the voices in index order.
func (x Index) Entries() []IndexVoice { return x.Voices.Items }

// MarshalDocument renders the index with two-space indentation.
func (x Index) MarshalDocument() ([]byte, error) {
	body, err := xml.MarshalIndent(x, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	return append(out, '\n'), nil
}
