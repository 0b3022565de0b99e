package model

// SentenceUnit is one sentence of the uploaded document.
// Start and End are byte offsets into the session's source text; the unit is
// immutable once segmentation produced it.
type SentenceUnit struct {
	Index                int    `json:"index"`
	Text                 string `json:"text"`
	Start                int    `json:"start"`
	End                  int    `json:"end"`
	SegmentedAmbiguously bool   `json:"segmented_ambiguously"`
}

// FinalDocument is the assembled output of a completed session. It is never persisted.
type FinalDocument struct {
	SessionID      string `json:"session_id"`
	Filename       string `json:"filename"`
	Content        []byte `json:"-"`
	ChangedCount   int    `json:"changed_count"`
	TotalSentences int    `json:"total_sentences"`
	// URL is a presigned download link when the document was archived.
	URL string `json:"url,omitempty"`
}
