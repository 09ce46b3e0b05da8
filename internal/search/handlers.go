package search

// LimitHandler converts a Continue/Stop into Finish once n results have been
// recorded (spec.md §4.6 "Limit(n)").
type LimitHandler struct {
	Inner Handler
	N     int64

	recorded int64
}

func NewLimitHandler(inner Handler, n int64) *LimitHandler {
	return &LimitHandler{Inner: inner, N: n}
}

func (l *LimitHandler) Process(index, distance int64) (Verdict, error) {
	v, err := l.Inner.Process(index, distance)
	if err != nil {
		return Verdict{}, err
	}
	if v.Add {
		l.recorded++
		if l.N > 0 && l.recorded >= l.N && v.Kind != Finish {
			v.Kind = Finish
		}
	}
	return v, nil
}

// OffsetHandler suppresses the Add flag until the k-th otherwise-recorded
// index (spec.md §4.6 "Offset(k)").
type OffsetHandler struct {
	Inner Handler
	K     int64

	seen int64
}

func NewOffsetHandler(inner Handler, k int64) *OffsetHandler {
	return &OffsetHandler{Inner: inner, K: k}
}

func (o *OffsetHandler) Process(index, distance int64) (Verdict, error) {
	v, err := o.Inner.Process(index, distance)
	if err != nil {
		return Verdict{}, err
	}
	if v.Add {
		if o.seen < o.K {
			o.seen++
			v.Add = false
		} else {
			o.seen++
		}
	}
	return v, nil
}

// NewLimitOffsetHandler composes Offset(k) then Limit(n), matching spec.md
// §4.6 "LimitOffset(n, k) combines both": offset is applied first so the
// limit counts only post-offset results.
func NewLimitOffsetHandler(inner Handler, n, k int64) Handler {
	return NewLimitHandler(NewOffsetHandler(inner, k), n)
}
