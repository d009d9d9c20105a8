package model

import "sort"

// Word is one recognised token with provider timings in milliseconds.
type Word struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Utterance is a provider span of speech attributed to one speaker.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words,omitempty"`
}

// Transcript is the raw completed payload returned by the provider.
type Transcript struct {
	Text          string      `json:"text"`
	Words         []Word      `json:"words,omitempty"`
	Utterances    []Utterance `json:"utterances,omitempty"`
	Confidence    float64     `json:"confidence"`
	LanguageCode  string      `json:"languageCode,omitempty"`
	AudioDuration float64     `json:"audioDuration,omitempty"`
}

// Clone returns a deep copy so callers never share word or utterance slices
// with a stored record.
func (t *Transcript) Clone() *Transcript {
	if t == nil {
		return nil
	}
	out := *t
	out.Words = append([]Word(nil), t.Words...)
	if t.Utterances != nil {
		out.Utterances = make([]Utterance, len(t.Utterances))
		for i, u := range t.Utterances {
			u.Words = append([]Word(nil), u.Words...)
			out.Utterances[i] = u
		}
	}
	return &out
}

// Meta derives the persisted metadata of a transcript.
func (t *Transcript) Meta() ResultMeta {
	if t == nil {
		return ResultMeta{}
	}
	return ResultMeta{Duration: t.AudioDuration, Language: t.LanguageCode}
}

// Segment is a display projection of the transcript.
type Segment struct {
	Index      int     `json:"index"`
	StartMS    int64   `json:"startMs"`
	EndMS      int64   `json:"endMs"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence"`
}

// BuildSegments prefers per-speaker utterances and falls back to a single
// segment spanning every word. The result is ordered by start time.
func BuildSegments(t *Transcript) []Segment {
	if t == nil {
		return nil
	}
	var segments []Segment
	switch {
	case len(t.Utterances) > 0:
		segments = make([]Segment, 0, len(t.Utterances))
		for _, u := range t.Utterances {
			segments = append(segments, Segment{
				StartMS:    u.Start,
				EndMS:      u.End,
				Text:       u.Text,
				Speaker:    u.Speaker,
				Confidence: confidenceOr(u.Confidence, 1),
			})
		}
	case len(t.Words) > 0:
		segments = []Segment{{
			StartMS:    t.Words[0].Start,
			EndMS:      t.Words[len(t.Words)-1].End,
			Text:       t.Text,
			Confidence: confidenceOr(t.Confidence, 1),
		}}
	default:
		return nil
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartMS < segments[j].StartMS
	})
	for i := range segments {
		segments[i].Index = i
	}
	return segments
}

func confidenceOr(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
