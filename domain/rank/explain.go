package rank

// Contribution is one signal's weighted share of a final score.
type Contribution struct {
	Signal   string  `json:"signal"`
	SubScore float64 `json:"subScore"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// Explanation is the full per-signal breakdown of a ranked result.
type Explanation struct {
	DocumentID    string         `json:"documentId"`
	Similarity    float64        `json:"similarity"`
	KeywordBoost  float64        `json:"keywordBoost"`
	Contributions []Contribution `json:"contributions"`
	BaseScore     float64        `json:"baseScore"`
	IntentBoost   float64        `json:"intentBoost"`
	FinalScore    float64        `json:"finalScore"`
}

// Explain returns the per-signal breakdown and weighted contributions for
// a ranked result.
func (r *Ranker) Explain(res Result) Explanation {
	b := res.Breakdown()
	w := r.weights

	return Explanation{
		DocumentID:   res.Document().DocumentID(),
		Similarity:   res.Match().Similarity(),
		KeywordBoost: res.Match().KeywordBoost(),
		Contributions: []Contribution{
			{Signal: "vector", SubScore: b.Vector, Weight: w.vector, Weighted: b.Vector * w.vector},
			{Signal: "recency", SubScore: b.Recency, Weight: w.recency, Weighted: b.Recency * w.recency},
			{Signal: "keyword", SubScore: b.Keyword, Weight: w.keyword, Weighted: b.Keyword * w.keyword},
			{Signal: "source", SubScore: b.Source, Weight: w.source, Weighted: b.Source * w.source},
			{Signal: "length", SubScore: b.Length, Weight: w.length, Weighted: b.Length * w.length},
		},
		BaseScore:   res.BaseScore(),
		IntentBoost: res.intentBoost,
		FinalScore:  res.Score(),
	}
}
