package reading

// Signals are the evaluator inputs taken from a finalized session
type Signals struct {
	TimeSpentSeconds   float64
	FocusTimeSeconds   float64
	ScrollDepthPercent float64
	WordCount          int
	BlurCount          int
	ScrollEvents       int
	MinSecondsPerWord  float64
}

// Derived holds the rates computed from Signals
type Derived struct {
	SecondsPerWord float64
	WordsPerMinute float64
}

// Flags records which individual heuristics fired
type Flags struct {
	TooFast            bool `json:"tooFast"`
	LowScroll          bool `json:"lowScroll"`
	ShortFocus         bool `json:"shortFocus"`
	ManyBlurs          bool `json:"manyBlurs"`
	TooSlow            bool `json:"tooSlow"`
	MinimalInteraction bool `json:"minimalInteraction"`
}

// Judgement is a policy decision
type Judgement struct {
	FastRead bool
	Reason   string
	Flags    Flags
}

// Verdict is the evaluator output for one snapshot
type Verdict struct {
	TimeSpentSeconds   float64
	SecondsPerWord     float64
	WordsPerMinute     float64
	ScrollDepthPercent float64
	FocusTimeSeconds   float64
	WordCount          int
	BlurCount          int
	FastRead           bool
	Reason             string
	Policy             string
	Flags              Flags
}

// Derive computes seconds-per-word and words-per-minute.
// A zero word count or zero focus time yields 0 for the dependent rate.
func Derive(in Signals) Derived {
	var d Derived
	if in.WordCount > 0 {
		d.SecondsPerWord = in.TimeSpentSeconds / float64(in.WordCount)
	}
	if in.FocusTimeSeconds > 0 {
		d.WordsPerMinute = float64(in.WordCount) / in.FocusTimeSeconds * 60
	}
	if !finite(d.SecondsPerWord) {
		d.SecondsPerWord = 0
	}
	if !finite(d.WordsPerMinute) {
		d.WordsPerMinute = 0
	}
	return d
}

// Evaluate applies policy p to the signals. It is a pure function: degenerate
// sessions (no words or no elapsed time) are never flagged.
func Evaluate(p Policy, in Signals) Verdict {
	if p == nil {
		p = DefaultPolicy()
	}
	in = in.sanitized()
	d := Derive(in)

	v := Verdict{
		TimeSpentSeconds:   in.TimeSpentSeconds,
		SecondsPerWord:     d.SecondsPerWord,
		WordsPerMinute:     d.WordsPerMinute,
		ScrollDepthPercent: in.ScrollDepthPercent,
		FocusTimeSeconds:   in.FocusTimeSeconds,
		WordCount:          in.WordCount,
		BlurCount:          in.BlurCount,
		Policy:             p.Name(),
	}
	if in.WordCount == 0 || in.TimeSpentSeconds == 0 {
		v.SecondsPerWord = 0
		v.WordsPerMinute = 0
		return v
	}

	j := p.Judge(in, d)
	v.FastRead = j.FastRead
	v.Reason = j.Reason
	v.Flags = j.Flags
	return v
}

// sanitized replaces NaN, infinite and negative inputs with 0, clamps scroll
// depth to 0-100, caps focus time at elapsed time and fills the threshold.
func (in Signals) sanitized() Signals {
	nonNeg := func(f float64) float64 {
		if !finite(f) || f < 0 {
			return 0
		}
		return f
	}
	in.TimeSpentSeconds = nonNeg(in.TimeSpentSeconds)
	in.FocusTimeSeconds = nonNeg(in.FocusTimeSeconds)
	if in.FocusTimeSeconds > in.TimeSpentSeconds {
		in.FocusTimeSeconds = in.TimeSpentSeconds
	}
	in.ScrollDepthPercent = clamp(nonNeg(in.ScrollDepthPercent), 0, 100)
	if in.WordCount < 0 {
		in.WordCount = 0
	}
	if in.BlurCount < 0 {
		in.BlurCount = 0
	}
	if in.ScrollEvents < 0 {
		in.ScrollEvents = 0
	}
	if !finite(in.MinSecondsPerWord) || in.MinSecondsPerWord <= 0 {
		in.MinSecondsPerWord = DefaultMinSecondsPerWord
	}
	return in
}
